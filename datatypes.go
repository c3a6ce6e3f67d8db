package main

import (
	"go.uber.org/zap"

	"DSGE_OBC_Project/application/internal/config"
	"DSGE_OBC_Project/application/internal/dsge"
)

// session is what every subcommand works from: the configuration, the logger
// and the compiled model, with data and filter attached if data is configured.
type session struct {
	cfg    *config.Config
	log    *zap.Logger
	model  *dsge.Model
	states []string
}

// Options of the irf subcommand
type irfOptions struct {
	// Name of the shock
	Shock string
	// Size in standard deviations, negative values shock downwards
	Size float64
	// Number of periods (h=0, ..., horizon-1)
	Horizon int
	Out     string
}

// Options of the filter subcommand
type filterOptions struct {
	Smooth  bool
	Extract bool
	Out     string
}

// Options of the sample subcommand
type sampleOptions struct {
	// Parameter source token: prior, posterior, or any point source
	Source   string
	NSamples int
	Subset   bool
	Out      string
}
