package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"caseflow/internal/logging"
	"caseflow/internal/preflight"
	"caseflow/internal/storage"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, storage and source reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var pinger preflight.Pinger
			db, openErr := storage.Open(cfg)
			if openErr == nil {
				defer db.Close()
				pinger = db
			}
			results := preflight.RunAll(cmd.Context(), cfg, pinger, logging.NewNop())
			if asJSON {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Preflight", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, r := range results {
					kind := statusOK
					if !r.Passed {
						kind = statusWarn
						if r.Required {
							kind = statusError
						}
					}
					fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
				}
			}
			if preflight.Failed(results) {
				return fmt.Errorf("required preflight checks failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
