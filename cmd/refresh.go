package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/regwatch/munireg/internal/munireg"
)

func newRefreshCmd() *cobra.Command {
	var (
		country string
		actorID string
	)
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Runs one manual refresh job and waits for it to finish",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			job, err := a.Orchestrator.Run(cmd.Context(), munireg.RunKindManual, actorID, country)
			if err != nil {
				return fmt.Errorf("refresh run: %w", err)
			}
			a.Logger.Info("refresh run finished",
				zap.String("job_id", job.ID),
				zap.String("status", string(job.Status)),
				zap.Int("considered", job.Counters.Considered),
				zap.Int("updated", job.Counters.Updated),
				zap.Int("failed", job.Counters.Failed),
				zap.Int("skipped", job.Counters.Skipped),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&country, "country", "", "refresh a single country code instead of the full catalog")
	cmd.Flags().StringVar(&actorID, "actor", "cli", "actor recorded on the job")
	return cmd
}
