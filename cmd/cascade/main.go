// Command cascade computes the layered decay series, its signatures,
// records and cascade verdict, and stores or serves the results.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/talgya/cascade/internal/cascade"
	"github.com/talgya/cascade/internal/config"
	"github.com/talgya/cascade/internal/logging"
	"github.com/talgya/cascade/internal/params"
	"github.com/talgya/cascade/internal/persistence"
)

// app carries state shared by every subcommand of one invocation.
type app struct {
	configPath string
	alpha      float64
	layers     int
	phase      string
	verbose    bool

	cfg    *config.Config
	engine *cascade.Engine
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "cascade",
		Short: "Layered exponential-decay series generator and record encoder",
		Long: `cascade derives an exponential-decay energy series over N layers and
from it: per-layer signatures, a parity dispersion of a 4096·N byte buffer,
one fixed-width binary record per layer, and a pairwise cascade verdict.

Parameters come from cascade.yaml, CASCADE_* environment variables and flags,
in increasing order of precedence.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", config.DefaultPath, "config file path")
	pf.Float64Var(&a.alpha, "alpha", params.DefaultAlpha, "decay coefficient (> 0)")
	pf.IntVar(&a.layers, "layers", params.DefaultLayers, "number of layers (> 0)")
	pf.StringVar(&a.phase, "phase", "layer", "phase mode: layer or flat")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		a.runCmd(),
		a.signaturesCmd(),
		a.recordCmd(),
		a.verdictCmd(),
		a.runsCmd(),
		a.serveCmd(),
		a.configCmd(),
	)
	return root
}

// setup loads config, applies flag overrides, installs the logger and
// builds the engine.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("alpha") {
		cfg.Cascade.Alpha = a.alpha
	}
	if flags.Changed("layers") {
		cfg.Cascade.Layers = a.layers
	}
	if flags.Changed("phase") {
		cfg.Cascade.Phase = a.phase
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}

	if err := logging.Setup(cfg.Logging, cmd.ErrOrStderr()); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	p, err := cfg.Params()
	if err != nil {
		return err
	}
	e, err := cascade.NewEngine(p)
	if err != nil {
		return err
	}
	e.Parallel = cfg.Buffer.Parallel
	e.Workers = cfg.Buffer.Workers

	a.cfg = cfg
	a.engine = e
	return nil
}

// openDB opens the run store, creating its directory. Returns nil when
// storage is disabled.
func (a *app) openDB() (*persistence.DB, error) {
	if !a.cfg.Storage.Enabled {
		return nil, nil
	}
	if dir := filepath.Dir(a.cfg.Storage.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}
	return persistence.Open(a.cfg.Storage.Path)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
