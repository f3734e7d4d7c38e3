package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"llmchat-gateway/internal/metrics"
	"llmchat-gateway/internal/server"
)

func newServeCommand(cfgPath *string) *cobra.Command {
	var overridePort int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		Example: `  LLM_API_URL=http://localhost:8080 llmchat-gateway serve
  llmchat-gateway serve --config gateway.yaml --port 9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("port") {
				if overridePort <= 0 || overridePort > 65535 {
					return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
				}
				cfg.Server.Port = overridePort
			}

			m := metrics.New()
			svc, err := newService(cfg, m)
			if err != nil {
				return err
			}

			srv, err := server.New(cfg, svc, m)
			if err != nil {
				return err
			}

			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&overridePort, "port", "p", 0, "override server port from configuration")
	return cmd
}
