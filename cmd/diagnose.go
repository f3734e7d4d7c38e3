package cmd

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"llmchat-gateway/internal/metrics"
)

// ErrDiagnoseFailed is returned when a diagnostic check fails.
var ErrDiagnoseFailed = errors.New("diagnostic checks failed")

func newDiagnoseCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Check connectivity to the LLM server and print a JSON report",
		Long: `diagnose runs the same three checks as GET /api/diagnose:
reachability of the base URL, GET /v1/models and a minimal chat completion.
It exits non-zero when any check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			svc, err := newService(cfg, metrics.New())
			if err != nil {
				return err
			}

			report := svc.Diagnose(cmd.Context())

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}

			if report.Failed() {
				return ErrDiagnoseFailed
			}
			return nil
		},
	}
}
