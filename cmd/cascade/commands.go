package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/talgya/cascade/internal/api"
	"github.com/talgya/cascade/internal/buffer"
	"github.com/talgya/cascade/internal/cascade"
	"github.com/talgya/cascade/internal/config"
)

// signaturePreview is how many signatures `run` prints before eliding.
const signaturePreview = 3

func (a *app) runCmd() *cobra.Command {
	var (
		provider string
		noStore  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the full pipeline and store the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider != "" {
				a.cfg.Buffer.Provider = provider
			}
			prov, err := buffer.New(buffer.Kind(a.cfg.Buffer.Provider), a.cfg.Buffer.Seed)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := a.engine.Run(ctx, prov)
			if err != nil {
				return err
			}
			printReport(cmd, report)

			if noStore {
				return nil
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			if db == nil {
				return nil
			}
			defer db.Close()
			if err := db.SaveReport(report); err != nil {
				return fmt.Errorf("save report: %w", err)
			}
			if err := db.SaveMeta("last_run", report.ID.String()); err != nil {
				return fmt.Errorf("save meta: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nStored run %s in %s\n", report.ID, a.cfg.Storage.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "buffer provider: heap, pool or noise")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not persist the report")
	return cmd
}

func printReport(cmd *cobra.Command, r *cascade.Report) {
	out := cmd.OutOrStdout()
	p := r.Params
	fmt.Fprintf(out, "Run %s\n", r.ID)
	fmt.Fprintf(out, "  alpha=%v layers=%d phase=%s\n", p.Alpha, p.Layers, p.Phase)
	fmt.Fprintf(out, "  buffer=%s cascade_total=%.4f\n", humanize.IBytes(uint64(p.BufferSize())), r.Series.Total)

	fmt.Fprintln(out, "\nSignatures:")
	for _, sig := range r.Signatures[:min(signaturePreview, len(r.Signatures))] {
		fmt.Fprintf(out, "  %s\n", sig)
	}
	if rest := len(r.Signatures) - signaturePreview; rest > 0 {
		fmt.Fprintf(out, "  ... and %d more layers\n", rest)
	}

	fmt.Fprintln(out)
	printVerdict(cmd, r.Verdict)
	fmt.Fprintf(out, "  elapsed: %s\n", r.Elapsed.Round(time.Microsecond))
}

func printVerdict(cmd *cobra.Command, v cascade.CascadeVerdict) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Verdict:")
	for d, effect := range v.LayerEffects {
		if d%5 == 0 {
			fmt.Fprintf(out, "  layer %2d: effect=%.4f\n", d, effect)
		}
	}
	fmt.Fprintf(out, "  total effect:    %.4f\n", v.TotalEffect)
	fmt.Fprintf(out, "  cascade total:   %.4f\n", v.CascadeTotal)
	fmt.Fprintf(out, "  threshold ratio: %.4f\n", v.ThresholdRatio)
	fmt.Fprintf(out, "  reference ratio: %.4f (saturation %.1f%%)\n", v.ReferenceRatio, v.Saturation*100)
	fmt.Fprintf(out, "  achieved:        %t\n", v.Achieved)
}

func (a *app) signaturesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signatures",
		Short: "Print every layer signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			sigs, err := a.engine.Signatures()
			if err != nil {
				return err
			}
			for _, sig := range sigs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s delay=%s\n", sig, sig.Delay())
			}
			return nil
		},
	}
}

func (a *app) recordCmd() *cobra.Command {
	var (
		layer int
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Hex-dump the encoded record of a layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			layers := []int{layer}
			if all {
				layers = layers[:0]
				for d := 0; d < a.engine.Params.Layers; d++ {
					layers = append(layers, d)
				}
			}
			for _, d := range layers {
				raw, err := a.engine.Record(d)
				if err != nil {
					return err
				}
				r, err := cascade.DecodeRecord(a.engine.Params, d, raw)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "layer %d: opcode=%d flags=%d signature=%d\n", d, r.Opcode, r.Flags, r.Signature)
				fmt.Fprint(out, hex.Dump(raw))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&layer, "layer", 0, "layer index")
	cmd.Flags().BoolVar(&all, "all", false, "dump every layer")
	return cmd
}

func (a *app) verdictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verdict",
		Short: "Compute the pairwise cascade verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.engine.Verdict()
			if err != nil {
				return err
			}
			printVerdict(cmd, v)
			return nil
		},
	}
}

func (a *app) runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			if db == nil {
				return fmt.Errorf("storage is disabled")
			}
			defer db.Close()

			runs, err := db.RecentRuns(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no stored runs")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %-14s alpha=%v layers=%d total_effect=%.4f achieved=%t\n",
					r.ID, humanize.Time(r.CreatedAt()), r.Alpha, r.Layers, r.TotalEffect, r.IsAchieved())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum runs to list")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine and stored runs over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.API.Port = port
			}
			prov, err := buffer.New(buffer.Kind(a.cfg.Buffer.Provider), a.cfg.Buffer.Seed)
			if err != nil {
				return err
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}
			if a.cfg.API.AdminKey == "" {
				slog.Warn("CASCADE_ADMIN_KEY not set, POST /api/v1/runs is disabled")
			}

			srv := &api.Server{
				Engine:   a.engine,
				Provider: prov,
				DB:       db,
				Port:     a.cfg.API.Port,
				AdminKey: a.cfg.API.AdminKey,
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8033, "listen port")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
		// Loads without validating so a broken file can still be shown.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	})
	return cmd
}
