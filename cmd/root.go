package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"llmchat-gateway/internal/config"
	"llmchat-gateway/internal/logging"
	"llmchat-gateway/internal/metrics"
	providerfactory "llmchat-gateway/internal/provider/factory"
	"llmchat-gateway/internal/service"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

// Execute runs the CLI with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	root := newRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "llmchat-gateway",
		Short: "HTTP gateway between a browser chat client and an OpenAI-compatible LLM server",
		Long: `llmchat-gateway accepts simplified chat requests from a browser client,
forwards them to a self-hosted OpenAI-compatible completion server
(llama.cpp, vLLM, LM Studio, ...) and translates the answer back.

Configuration is read from an optional YAML file, an optional .env file and
the environment (LLM_API_URL, LLM_API_MODEL, ...). LLM_API_URL is required.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML configuration file")

	root.AddCommand(
		newServeCommand(&cfgPath),
		newDiagnoseCommand(&cfgPath),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

// loadConfig reads configuration and installs the process logger.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	slog.SetDefault(logging.New(cfg.Logging, os.Stderr))
	return cfg, nil
}

func newService(cfg config.Config, m *metrics.Metrics) (*service.Service, error) {
	upstream, err := providerfactory.NewUpstream(cfg.LLM, m)
	if err != nil {
		return nil, err
	}
	probe := providerfactory.NewProbeClient(cfg.LLM.ConnectTimeout, cfg.LLM.ReadTimeout)
	return service.New(cfg.LLM, upstream, probe, m)
}
