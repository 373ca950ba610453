package main

import (
	"strings"

	"github.com/spf13/cobra"

	"ACRScanner/internal/app"
	"ACRScanner/internal/config"
	"ACRScanner/internal/logging"
)

// runFlags mirrors the options shared by run and schedule.
type runFlags struct {
	configPath string
	repo       string
	scanner    string
	step       int
	backend    string
	model      string
	tags       string
	limit      int
	outputDir  string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "path to a YAML config file (default: $ACR_SCANNER_CONFIG)")
	cmd.Flags().StringVar(&f.repo, "repo", "drupal", "project to scan: a Drupal project name or a GitHub owner/repo")
	cmd.Flags().StringVar(&f.scanner, "scanner", "", "force a tracker connector (drupal or github) instead of choosing by --repo")
	cmd.Flags().IntVar(&f.step, "step", 0, "run only this step (1 extract, 2 summarize, 3 analyze-thread, 4 consolidate, 5 report); 0 runs all")
	cmd.Flags().StringVar(&f.backend, "ai-backend", "", "ai backend: remote (gemini) or local (ollama)")
	cmd.Flags().StringVar(&f.model, "model", "", "model name override")
	cmd.Flags().StringVar(&f.tags, "tags", "", "comma-separated tags overriding the tag catalog")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum number of records to process (0 means no limit)")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "run directory override")
}

func (f *runFlags) options() app.Options {
	return app.Options{
		Repo:      f.repo,
		Scanner:   f.scanner,
		Step:      f.step,
		Backend:   f.backend,
		Model:     f.model,
		Tags:      splitTags(f.tags),
		Limit:     f.limit,
		OutputDir: f.outputDir,
	}
}

func (f *runFlags) build() (*app.Application, error) {
	cfg := config.Load(f.configPath)
	return app.New(cfg, f.options(), logging.New(cfg.Logging.Level))
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "acrscanner",
		Short:         "Build OpenACR accessibility conformance reports from issue trackers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newScheduleCmd())
	return root
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once, or a single step of it",
		Long: `Run the pipeline once, or a single step of it.

Examples:
  acrscanner run --repo drupal --limit 20
  acrscanner run --repo owner/repo --ai-backend ollama --model gemma3:4b
  acrscanner run --repo drupal --step 4 --output-dir results/drupal-gemini-2.0-flash-05-06-2024`,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := flags.build()
			if err != nil {
				return err
			}
			defer application.Close()
			return application.Run(cmd.Context())
		},
	}
	flags.register(cmd)
	return cmd
}

func newScheduleCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Repeat the full pipeline every scheduler.interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.step = 0
			application, err := flags.build()
			if err != nil {
				return err
			}
			defer application.Close()
			return application.Schedule(cmd.Context())
		},
	}
	flags.register(cmd)
	return cmd
}
