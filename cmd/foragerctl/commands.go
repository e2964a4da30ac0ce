package main

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"foragerfit/pkg/foragerfit"
)

func report(cmd *cobra.Command, action string, s foragerfit.BatchSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s run=%s succeeded=%d failed=%d\n", action, s.RunID, len(s.Succeeded), len(s.Failed))
	if len(s.Failed) > 0 {
		fmt.Fprintf(out, "failed: %s\n", strings.Join(s.Failed, ", "))
	}
	if s.OutputDir != "" {
		fmt.Fprintf(out, "output: %s\n", s.OutputDir)
	}
	for _, f := range s.Files {
		fmt.Fprintf(out, "  %s\n", f)
	}
}

func newFitCmd(a *app) *cobra.Command {
	var prefix string
	var cv bool
	cmd := &cobra.Command{
		Use:   "fit <data-dir>",
		Short: "Fit every recording under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kFold := 0
			if cv {
				kFold = a.cfg.Fit.KFold
			}
			client, err := a.client(cmd.Context(), kFold)
			if err != nil {
				return err
			}
			defer client.Close()
			if prefix == "" {
				prefix = a.cfg.Output.Prefix
			}
			a.logger.Info("fitting recordings", zap.String("dir", args[0]), zap.String("prefix", prefix), zap.Bool("cv", cv))
			s, err := client.FitDir(cmd.Context(), args[0], prefix)
			if err != nil {
				return err
			}
			report(cmd, "fit", s)
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Result prefix (default from config)")
	cmd.Flags().BoolVar(&cv, "cv", false, "Cross-validate session-wise fits with fit.k_fold folds")
	return cmd
}

func newCVPatchCmd(a *app) *cobra.Command {
	var prefix string
	var models []int
	var kFold int
	cmd := &cobra.Command{
		Use:   "cv-patch",
		Short: "Cross-validate selected models over stored session-wise fits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client(cmd.Context(), 0)
			if err != nil {
				return err
			}
			defer client.Close()
			if prefix == "" {
				prefix = a.cfg.Output.Prefix
			}
			if len(models) == 0 {
				models = a.cfg.Fit.PatchModels
			}
			if kFold == 0 {
				kFold = a.cfg.Fit.KFold
			}
			s, err := client.PatchCrossValidation(cmd.Context(), prefix, models, kFold)
			if err != nil {
				return err
			}
			report(cmd, "cv-patch", s)
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Result prefix (default from config)")
	cmd.Flags().IntSliceVar(&models, "models", nil, "1-based catalog indices (default fit.patch_models, then all)")
	cmd.Flags().IntVar(&kFold, "k-fold", 0, "Fold count (default fit.k_fold)")
	return cmd
}

func newCombineCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "combine <prefix-a> <prefix-b>",
		Short: "Merge two runs fitted on identical histories",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			client, err := a.client(cmd.Context(), 0)
			if err != nil {
				return err
			}
			defer client.Close()
			s, err := client.Combine(cmd.Context(), args[0], args[1], out)
			if err != nil {
				return err
			}
			report(cmd, "combine", s)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Prefix for the combined results")
	return cmd
}

func newAggregateCmd(a *app) *cobra.Command {
	var prefix, outDir string
	var contrast bool
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Summarise stored subjects into population tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client(cmd.Context(), 0)
			if err != nil {
				return err
			}
			defer client.Close()
			if prefix == "" {
				prefix = a.cfg.Output.Prefix
			}
			if outDir == "" {
				outDir = a.cfg.Output.Dir
			}
			opts := a.cfg.Group
			if cmd.Flags().Changed("contrast") {
				opts.Contrast = contrast
			}
			s, err := client.Aggregate(cmd.Context(), prefix, opts, outDir)
			if err != nil {
				return err
			}
			report(cmd, "aggregate", s)
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Result prefix (default from config)")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Artifact directory (default output.dir)")
	cmd.Flags().BoolVar(&contrast, "contrast", false, "Report delta AIC against the reference model")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	var prefix string
	var session int
	var asCSV bool
	cmd := &cobra.Command{
		Use:   "show <subject>",
		Short: "Print a stored comparison table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client(cmd.Context(), 0)
			if err != nil {
				return err
			}
			defer client.Close()
			if prefix == "" {
				prefix = a.cfg.Output.Prefix
			}
			if asCSV {
				return client.ShowCSV(cmd.Context(), cmd.OutOrStdout(), prefix, args[0], session)
			}
			text, err := client.Show(cmd.Context(), prefix, args[0], session)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Result prefix (default from config)")
	cmd.Flags().IntVar(&session, "session", 0, "1-based session-wise comparison (0 shows the grand fit)")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "Write the table as CSV in model order")
	return cmd
}

func newRunsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recorded batch runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client(cmd.Context(), 0)
			if err != nil {
				return err
			}
			defer client.Close()
			runs, err := client.Runs(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderRuns(runs))
			return nil
		},
	}
}

func newFullQCmd(a *app) *cobra.Command {
	var trials int
	var seed int64
	cmd := &cobra.Command{
		Use:   "fullq",
		Short: "Simulate a full-state Q learner on the baited task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lcfg, err := a.cfg.FullQ.LearnerConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("trials") {
				trials = a.cfg.FullQ.Trials
			}
			if !cmd.Flags().Changed("seed") {
				seed = a.cfg.FullQ.Seed
			}
			lcfg.Rand = rand.New(rand.NewSource(seed))
			client, err := foragerfit.New(cmd.Context(), foragerfit.Options{StoreKind: "memory", Logger: a.logger})
			if err != nil {
				return err
			}
			defer client.Close()
			res, err := client.SimulateFullQ(cmd.Context(), lcfg, trials, seed)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderFullQ(res))
			return nil
		},
	}
	cmd.Flags().IntVar(&trials, "trials", 0, "Trial count (default fullq.trials)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Task and learner seed (default fullq.seed)")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init <path>",
		Short: "Write the effective configuration as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Save(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	})
	return cmd
}
