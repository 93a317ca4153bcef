package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/ghgforest/pipeline"
	"github.com/YuminosukeSato/ghgforest/pkg/errors"
	"github.com/YuminosukeSato/ghgforest/report"
	"github.com/YuminosukeSato/ghgforest/sklearn/inspection"
)

type runFlags struct {
	data    string
	config  string
	out     string
	lags    int
	seed    uint64
	workers int
	repeat  int
	noPlots bool
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Partition, resample, fit and explain one flux table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd, cfg, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.data, "data", "", "daily CSV table with date, target and driver columns")
	flags.StringVar(&f.config, "config", "", "YAML configuration overlaid on the defaults")
	flags.StringVar(&f.out, "out", "report", "output directory")
	flags.IntVar(&f.lags, "lags", 0, "rebuild lag 1..N columns of every driver (overrides data.max_lag)")
	flags.Uint64Var(&f.seed, "seed", 0, "random seed (overrides seed)")
	flags.IntVar(&f.workers, "workers", 0, "parallel workers, 0 for all CPUs (overrides workers)")
	flags.IntVar(&f.repeat, "repeat", 1, "number of repeated fits with consecutive seeds")
	flags.BoolVar(&f.noPlots, "no-plots", false, "write summary.json only")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func resolveConfig(cmd *cobra.Command, f runFlags) (pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()
	if f.config != "" {
		var err error
		if cfg, err = pipeline.LoadConfig(f.config); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("lags") {
		cfg.Data.MaxLag = f.lags
	}
	if flags.Changed("seed") {
		cfg.Seed = f.seed
	}
	if flags.Changed("workers") {
		cfg.Workers = f.workers
	}
	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, cfg pipeline.Config, f runFlags) error {
	ctx := cmd.Context()
	ds, err := pipeline.LoadDataset(f.data, cfg.Data)
	if err != nil {
		return err
	}

	if f.repeat > 1 {
		rep, err := pipeline.Repeat(ctx, ds, cfg, f.repeat)
		if err != nil {
			return err
		}
		for r, res := range rep.Runs {
			if err := writeRun(res, filepath.Join(f.out, fmt.Sprintf("run%02d", r)), f.noPlots); err != nil {
				return err
			}
		}
		if err := os.MkdirAll(f.out, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", f.out)
		}
		data, err := json.MarshalIndent(rep.Drivers, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encode averaged importance")
		}
		if err := os.WriteFile(filepath.Join(f.out, "drivers_mean.json"), data, 0o644); err != nil {
			return errors.Wrap(err, "write averaged importance")
		}
		printDrivers(cmd, rep.Drivers[:min(len(rep.Drivers), 5)])
		return nil
	}

	res, err := pipeline.Run(ctx, ds, cfg)
	if err != nil {
		return err
	}
	if err := writeRun(res, f.out, f.noPlots); err != nil {
		return err
	}
	for _, e := range res.Evaluations {
		if e.Err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s not scored: %v\n", e.Partition, e.Err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-12s n=%-5d rmse=%.4f r2=%.4f\n", e.Partition, e.Scores.N, e.Scores.RMSE, e.Scores.RSquared)
	}
	printDrivers(cmd, res.Drivers[:min(len(res.Drivers), 5)])
	return nil
}

func writeRun(res *pipeline.Result, dir string, noPlots bool) error {
	if !noPlots {
		_, err := report.WriteAll(res, dir)
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	f, err := os.Create(filepath.Join(dir, "summary.json"))
	if err != nil {
		return errors.Wrap(err, "create summary")
	}
	if err := report.WriteSummary(f, res); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "close summary")
}

func printDrivers(cmd *cobra.Command, drivers []inspection.DriverImportance) {
	for _, d := range drivers {
		fmt.Fprintf(cmd.OutOrStdout(), "%-24s %.4f\n", d.Driver, d.Score)
	}
}
