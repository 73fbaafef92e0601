package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lantern-c2/lantern/internal/auth"
	"github.com/lantern-c2/lantern/internal/config"
	"github.com/lantern-c2/lantern/internal/doctor"
	"github.com/lantern-c2/lantern/internal/output"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose common issues",
		Long: `Run diagnostic checks to identify configuration and connectivity issues.

Checks performed:
  - Server URL and realtime endpoint
  - REST API reachability and response time
  - Operator token validity and credential source
  - Realtime channel handshake and reconnect schedule
  - CLI version against the latest release`,
		Example: `  lantern doctor
  lantern doctor --server https://c2.example.com
  lantern doctor --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			cfg := config.Load()
			serverURL := cfg.ServerURL()
			source, token := auth.GetCredentials(serverURL)

			runner := doctor.New(doctor.Env{
				ServerURL:   serverURL,
				Token:       token,
				TokenSource: source,
				Realtime:    cfg.Realtime(),
			})

			spin := out.Spinner("Running checks")
			spin.Start()

			results := runner.Run(cmd.Context())

			spin.Stop()

			if out.JSON {
				return out.PrintJSON(doctor.NewReport(results))
			}

			renderDoctor(out, results)

			return nil
		},
	}
}

func renderDoctor(out *output.Writer, results []doctor.Result) {
	out.Println("Lantern Doctor")
	out.Println("==============")
	out.Println()

	doctor.RenderResults(results, out)

	passed, failed, warnings := doctor.Summary(results)

	summary := fmt.Sprintf("%d passed", passed)
	if failed > 0 {
		summary += fmt.Sprintf(", %d failed", failed)
	}

	if warnings > 0 {
		summary += fmt.Sprintf(", %d warning(s)", warnings)
	}

	out.Println()
	out.Println(summary)
}
