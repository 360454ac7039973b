package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vzahanych/land2port/internal/detector"
	"github.com/vzahanych/land2port/internal/health"
)

func newCheckConfigCommand(ctx *commandContext) *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, string(data))

			if !probe {
				return nil
			}

			log := ctx.logger().Named("probe")
			mgr := health.NewManager(log, nil)
			mgr.RegisterChecker(health.NewStorageChecker(cfg.Storage.DataDir, cfg.Storage.MaxDiskUsagePercent))
			if cfg.Detector.ServiceURL != "" {
				client := detector.NewHTTPDetector(cfg.DetectorClientConfig(), log)
				mgr.RegisterChecker(health.NewDetectorChecker(client, cfg.Detector.ServiceURL))
			}
			if cfg.Storage.JournalEnabled {
				jnl, err := ctx.openJournal()
				if err != nil {
					return err
				}
				mgr.RegisterChecker(health.NewJournalChecker(jnl, jnl.Path()))
			}

			report := mgr.Check(cmd.Context())
			names := make([]string, 0, len(report.Checks))
			for name := range report.Checks {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Fprintln(out)
			for _, name := range names {
				check := report.Checks[name]
				line := fmt.Sprintf("%-10s %s", name, check.Status)
				if check.Message != "" {
					line += ": " + check.Message
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "overall    %s\n", report.Status)

			if !report.Ready() {
				return fmt.Errorf("health probe failed: %s", report.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "Also probe the detection service, storage and journal")
	return cmd
}
