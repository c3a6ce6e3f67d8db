package compiler

import "go.uber.org/zap"

// Depth is the regime search depth of the constraint engine.
type Depth struct {
	// LMax is the effective number of periods before the constraint may bind.
	LMax int
	// KMax is the number of periods the constraint may stay binding.
	KMax int
}

// Default depths.
var (
	DefaultDepth = Depth{LMax: 3, KMax: 17}
	LinearDepth  = Depth{LMax: 1, KMax: 0}
)

// ResolveDepth picks the depth for a compile. A requested lMax below 2 is
// corrected to 2 and the requested value is then raised by one. Missing
// values are taken from prev, then from the defaults.
func ResolveDepth(prev *Depth, lMax, kMax *int, linear bool, log *zap.Logger) Depth {
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultDepth
	if linear {
		def = LinearDepth
	}

	var d Depth
	switch {
	case lMax != nil:
		l := *lMax
		if l < 2 {
			log.Warn("l_max must be at least 2, correcting", zap.Int("l_max", l))
			l = 2
		}
		// the regime search stops one short of l_max
		d.LMax = l + 1
	case prev != nil:
		d.LMax = prev.LMax
	default:
		d.LMax = def.LMax
	}

	switch {
	case kMax != nil:
		d.KMax = *kMax
		if d.KMax < 0 {
			log.Warn("k_max must not be negative, correcting", zap.Int("k_max", d.KMax))
			d.KMax = 0
		}
	case prev != nil:
		d.KMax = prev.KMax
	default:
		d.KMax = def.KMax
	}
	return d
}
