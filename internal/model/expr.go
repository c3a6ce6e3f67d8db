package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// Expr is a compiled arithmetic expression over parameter names. It supports
// numbers, identifiers, + - * / ^, unary minus and parentheses, plus the
// functions exp, log and sqrt.
type Expr struct {
	src   string
	prog  *vm.Program
	names []string
	val   float64
}

// Resolver returns the value bound to a name.
type Resolver func(name string) (float64, bool)

var funcs = map[string]func(float64) float64{
	"exp":  math.Exp,
	"log":  math.Log,
	"sqrt": math.Sqrt,
}

var funcOpts = func() []expr.Option {
	var opts []expr.Option
	for name, fn := range funcs {
		opts = append(opts, expr.Function(name, func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("%s takes one argument, got %d", name, len(params))
			}
			x, err := toFloat(params[0])
			if err != nil {
				return nil, err
			}
			return fn(x), nil
		}))
	}
	return opts
}()

// identifiers collects parameter names in order of appearance.
type identifiers struct {
	names []string
}

func (v *identifiers) Visit(node *ast.Node) {
	id, ok := (*node).(*ast.IdentifierNode)
	if !ok {
		return
	}
	if _, fn := funcs[id.Value]; fn {
		return
	}
	v.names = append(v.names, id.Value)
}

// Const returns an expression that always evaluates to v.
func Const(v float64) Expr {
	return Expr{src: strconv.FormatFloat(v, 'g', -1, 64), val: v}
}

// ParseExpr parses and compiles s.
func ParseExpr(s string) (Expr, error) {
	if strings.TrimSpace(s) == "" {
		return Expr{}, fmt.Errorf("empty expression: %w", ErrBadExpression)
	}
	tree, err := parser.Parse(s)
	if err != nil {
		return Expr{}, fmt.Errorf("%q: %v: %w", s, err, ErrBadExpression)
	}
	prog, err := expr.Compile(s, funcOpts...)
	if err != nil {
		return Expr{}, fmt.Errorf("%q: %v: %w", s, err, ErrBadExpression)
	}
	var ids identifiers
	ast.Walk(&tree.Node, &ids)
	return Expr{src: s, prog: prog, names: ids.names}, nil
}

// Eval evaluates the expression. The zero Expr evaluates to 0.
func (e Expr) Eval(r Resolver) (float64, error) {
	if e.prog == nil {
		return e.val, nil
	}
	env := make(map[string]any, len(e.names))
	for _, name := range e.names {
		v, ok := r(name)
		if !ok {
			return 0, fmt.Errorf("%q: %w", name, ErrMissingParaFunc)
		}
		env[name] = v
	}
	out, err := expr.Run(e.prog, env)
	if err != nil {
		return 0, fmt.Errorf("%q: %v: %w", e.src, err, ErrBadExpression)
	}
	return toFloat(out)
}

// Names returns the identifiers referenced by the expression, in order of appearance.
func (e Expr) Names() []string {
	return append([]string(nil), e.names...)
}

func (e Expr) String() string { return e.src }

// UnmarshalYAML accepts a scalar holding either a number or an expression.
func (e *Expr) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected scalar expression: %w", value.Line, ErrBadExpression)
	}
	if v, err := strconv.ParseFloat(value.Value, 64); err == nil {
		*e = Const(v)
		return nil
	}
	parsed, err := ParseExpr(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*e = parsed
	return nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("value %v of type %T is not a number: %w", v, v, ErrBadExpression)
}
