package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"caseflow/internal/config"
	"caseflow/internal/daemonrun"
)

func newCommand() *cobra.Command {
	var configPath string
	var opts daemonrun.Options
	cmd := &cobra.Command{
		Use:           "caseflowd",
		Short:         "Run the caseflow daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Development logging (source locations)")
	cmd.Flags().BoolVar(&opts.Diagnostic, "diagnostic", false, "Write a separate DEBUG log")
	cmd.Flags().StringVar(&opts.SocketPath, "socket", "", "Override the IPC socket path")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, resolved, exists, err := config.Load(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !exists && strings.TrimSpace(path) != "" {
		return nil, fmt.Errorf("config file %s does not exist", resolved)
	}
	return cfg, nil
}
