package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCheckSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-sources",
		Short: "Sweeps configured regulator pages and reports content changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if a.Watcher == nil {
				return errors.New("no source pages configured")
			}
			changes, err := a.Watcher.CheckAll(cmd.Context(), a.Cfg.Sources.Pages)
			if err != nil {
				return err
			}
			for _, c := range changes {
				a.Logger.Info("source changed",
					zap.String("code", c.Code),
					zap.String("url", c.URL),
					zap.String("digest", c.Digest),
				)
			}
			a.Logger.Info("source sweep finished", zap.Int("changed", len(changes)))
			return nil
		},
	}
}
