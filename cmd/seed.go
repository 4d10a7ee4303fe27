package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/regwatch/munireg/internal/seed"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Ensures a record exists for every tracked country",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := seed.EnsureAll(cmd.Context(), a.Records, a.Logger)
			if err != nil {
				return err
			}
			a.Logger.Info("seed finished", zap.Int("countries", n))
			return nil
		},
	}
}
