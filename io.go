package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"DSGE_OBC_Project/application/internal/compiler"
)

// OutputMatrixToCSV writes CSV file:
//
//   - The first row is a header with the column names
//   - Every further row is one row of m
func OutputMatrixToCSV(path string, m mat.Matrix, header []string) error {
	r, c := m.Dims()
	if len(header) != c {
		return fmt.Errorf("header has %d names, matrix has %d columns", len(header), c)
	}

	// 1. Create file
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	// 2. Header and rows
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			record[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	// 3. Flush
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Helper function to print a matrix with a title
func PrintMatrix(w io.Writer, title string, m mat.Matrix) {
	fmt.Fprintf(w, "\n=== %s ===\n", title)
	fmt.Fprintf(w, "%v\n", mat.Formatted(m, mat.Prefix(" ")))
}

// Helper function to print the compiled system
func PrintSystem(w io.Writer, c *compiler.Compiled) {
	fmt.Fprintf(w, "states:        %v\n", c.VV)
	fmt.Fprintf(w, "forward:       %v\n", c.VX)
	fmt.Fprintf(w, "prunable:      %v (applied: %v)\n", c.OutMask, c.ReduceSys)
	fmt.Fprintf(w, "x_bar:         %v\n", c.XBar)
	fmt.Fprintf(w, "depth:         l_max=%d k_max=%d\n", c.Depth.LMax, c.Depth.KMax)

	PrintMatrix(w, "N (binding)", c.Sys.N)
	PrintMatrix(w, "A (slack)", c.Sys.A)
	PrintMatrix(w, "J", c.Sys.J)
	PrintMatrix(w, "cx", mat.NewVecDense(len(c.Sys.CX), c.Sys.CX).T())
	PrintMatrix(w, "b", mat.NewVecDense(len(c.Sys.B), c.Sys.B).T())
}

// Helper function to print parameter values sorted by name
func PrintParams(w io.Writer, structural, functional map[string]float64) {
	fmt.Fprintln(w, "\n=== Parameters ===")
	printSorted(w, structural)
	if len(functional) > 0 {
		fmt.Fprintln(w, "\n=== Functional Parameters ===")
		printSorted(w, functional)
	}
}

func printSorted(w io.Writer, vals map[string]float64) {
	names := make([]string, 0, len(vals))
	for n := range vals {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, " %-12s %v\n", n, vals[n])
	}
}

// Helper function to print impulse responses
func PrintIRF(w io.Writer, irf mat.Matrix, names []string, shock string) {
	fmt.Fprintf(w, "\n=== IRF to shock in %s ===\n", shock)
	fmt.Fprintf(w, "%4s", "h")
	for _, n := range names {
		fmt.Fprintf(w, " %12s", n)
	}
	fmt.Fprintln(w)
	r, c := irf.Dims()
	for h := 0; h < r; h++ {
		fmt.Fprintf(w, "%4d", h)
		for j := 0; j < c; j++ {
			fmt.Fprintf(w, " %12.6f", irf.At(h, j))
		}
		fmt.Fprintln(w)
	}
}

// rowsToDense stacks equally long rows into a matrix.
func rowsToDense(rows [][]float64) *mat.Dense {
	if len(rows) == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, r := range rows {
		out.SetRow(i, r)
	}
	return out
}
