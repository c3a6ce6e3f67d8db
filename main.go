package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"DSGE_OBC_Project/application/internal/config"
	"DSGE_OBC_Project/application/internal/logging"
)

var (
	// Global flags
	verbose   bool
	cfgPath   string
	modelPath string
	dataPath  string
	lMax      int
	kMax      int

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dsge",
	Short: "Solve, filter and simulate DSGE models with an occasionally binding constraint",
	Long: `dsge compiles a linear DSGE model with one occasionally binding constraint
into a piecewise linear state space system and runs an ensemble Kalman filter
over it.

The run is configured by a YAML file (see config.yaml); the flags below override
the model and data paths of that file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("model") {
			cfg.Model = modelPath
		}
		if cmd.Flags().Changed("data") {
			cfg.Data = dataPath
		}
		if cmd.Flags().Changed("l-max") {
			cfg.Solver.LMax = &lMax
		}
		if cmd.Flags().Changed("k-max") {
			cfg.Solver.KMax = &kMax
		}

		// Initialize logger
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Logging.Development)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// sysCmd prints the compiled system
var sysCmd = &cobra.Command{
	Use:   "sys",
	Short: "Compile the model and print the reduced system",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(withoutData(cfg), logger)
		if err != nil {
			return err
		}
		return s.runSys(cmd.OutOrStdout())
	},
}

var filterOpts filterOptions

// filterCmd filters the configured data
var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Run the ensemble Kalman filter over the data",
	Long: `Computes the log likelihood of the data and prints the state estimates:
  1. Filter:  forward pass only
  2. Smooth:  forward pass followed by the ensemble RTS smoother (--smooth)
  3. Extract: smoothed states re-simulated through the constraint (--extract)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Data == "" {
			return fmt.Errorf("filter needs data, set it in the config or with --data")
		}
		s, err := openSession(cfg, logger)
		if err != nil {
			return err
		}
		return s.runFilter(cmd.OutOrStdout(), filterOpts)
	},
}

var irfOpts irfOptions

// irfCmd prints an impulse response
var irfCmd = &cobra.Command{
	Use:   "irf",
	Short: "Compute the impulse response to one shock",
	Example: `  dsge irf --shock e --size -3 --horizon 20
  dsge irf --shock e --out irf.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(withoutData(cfg), logger)
		if err != nil {
			return err
		}
		if irfOpts.Shock == "" {
			irfOpts.Shock = s.model.Def().Shocks[0]
		}
		return s.runIRF(cmd.OutOrStdout(), irfOpts)
	},
}

var sampleOpts sampleOptions

// sampleCmd draws or looks up parameters
var sampleCmd = &cobra.Command{
	Use:   "sample [source]",
	Short: "Print parameters from a source (default: prior draws)",
	Long: `Resolves a parameter source and prints the resulting vectors.

Sources:
  - prior:  draws from the prior marginals
  - calib, init, best, mode, posterior_mode, prior_mean, adj_prior_mean
  - cov:      shock covariance at the current parameters
  - post_cov: parameter covariance over a stored chain
  - any parameter name prints its current value`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sampleOpts.Source = "prior"
		if len(args) == 1 {
			sampleOpts.Source = args[0]
		}
		if sampleOpts.NSamples == 0 {
			sampleOpts.NSamples = cfg.Sampling.NSamples
		}
		c := cfg
		if !cfg.Sampling.TestLProb {
			c = withoutData(cfg)
		}
		s, err := openSession(c, logger)
		if err != nil {
			return err
		}
		return s.runSample(cmd.OutOrStdout(), sampleOpts)
	},
}

// withoutData returns a copy of c that does not load data.
func withoutData(c *config.Config) *config.Config {
	cc := *c
	cc.Data = ""
	return &cc
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "Run configuration")
	rootCmd.PersistentFlags().StringVarP(&modelPath, "model", "m", "", "Model file (overrides the config)")
	rootCmd.PersistentFlags().StringVarP(&dataPath, "data", "d", "", "Data CSV (overrides the config)")
	rootCmd.PersistentFlags().IntVar(&lMax, "l-max", 0, "Periods before the constraint may bind")
	rootCmd.PersistentFlags().IntVar(&kMax, "k-max", 0, "Periods the constraint may stay binding")

	filterCmd.Flags().BoolVar(&filterOpts.Smooth, "smooth", false, "Run the smoother after the filter")
	filterCmd.Flags().BoolVar(&filterOpts.Extract, "extract", false, "Extract shocks and a constrained state path")
	filterCmd.Flags().StringVarP(&filterOpts.Out, "out", "o", "", "Write the states to this CSV file")

	irfCmd.Flags().StringVar(&irfOpts.Shock, "shock", "", "Shock name (default: the first shock)")
	irfCmd.Flags().Float64Var(&irfOpts.Size, "size", 1, "Shock size in standard deviations")
	irfCmd.Flags().IntVar(&irfOpts.Horizon, "horizon", 20, "Number of periods")
	irfCmd.Flags().StringVarP(&irfOpts.Out, "out", "o", "", "Write the responses to this CSV file")

	sampleCmd.Flags().IntVarP(&sampleOpts.NSamples, "nsamples", "n", 0, "Number of vectors (default from config)")
	sampleCmd.Flags().BoolVar(&sampleOpts.Subset, "subset", false, "Only the estimated parameters")
	sampleCmd.Flags().StringVarP(&sampleOpts.Out, "out", "o", "", "Write the vectors to this CSV file")

	rootCmd.AddCommand(sysCmd, filterCmd, irfCmd, sampleCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
