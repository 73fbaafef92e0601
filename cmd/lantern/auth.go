package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lantern-c2/lantern/internal/auth"
	"github.com/lantern-c2/lantern/internal/client"
	"github.com/lantern-c2/lantern/internal/config"
	clierrors "github.com/lantern-c2/lantern/internal/errors"
	"github.com/lantern-c2/lantern/internal/output"
	"github.com/lantern-c2/lantern/internal/prompt"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage operator authentication",
		Long:  `Store, check, and remove the operator token used for the configured server.`,
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthLogoutCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var tokenFlag string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with your operator token",
		Long: `Validate an operator token against the configured server and store it.

The token is kept in your system keyring (macOS Keychain, Windows Credential
Manager, or Linux Secret Service), one entry per server host. When no keyring
is available it is written to a private file in the lantern config directory.
The LANTERN_TOKEN environment variable takes precedence over stored tokens.`,
		Example: `  lantern auth login
  lantern auth login --server https://c2.example.com
  LANTERN_TOKEN=... lantern auth status`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			prompter := prompt.New(out)

			serverURL := config.Load().ServerURL()
			if serverURL == "" {
				return clierrors.ServerNotConfigured()
			}

			if os.Getenv(auth.EnvVarName) != "" {
				out.Info("%s environment variable is set", auth.EnvVarName)
				out.Muted("Environment variable takes precedence over stored credentials")
				out.Println()
			}

			token := strings.TrimSpace(tokenFlag)
			if token == "" {
				if !prompter.CanPrompt() {
					return clierrors.CannotPrompt(auth.EnvVarName)
				}

				var err error

				token, err = prompter.Token()
				if err != nil {
					if prompt.IsCanceled(err) {
						return clierrors.TokenEmpty()
					}

					return fmt.Errorf("read token prompt: %w", err)
				}
			}

			if token == "" {
				return clierrors.TokenEmpty()
			}

			spin := out.Spinner("Validating operator token")
			spin.Start()

			op, err := client.New(serverURL, token).ValidateToken(cmd.Context())
			if err != nil {
				spin.StopWithFailure("Invalid operator token")
				return clierrors.AuthFailed(err)
			}

			spin.Stop()

			source, err := auth.StoreToken(serverURL, token)
			if err != nil {
				return clierrors.ConfigFailed("store credentials", err)
			}

			out.Success("Authenticated as %s (%s) on %s", op.Name, op.Role, serverURL)
			out.Muted("Token stored in %s", source)

			return nil
		},
	}

	cmd.Flags().StringVar(&tokenFlag, "token", "", "Operator token for non-interactive login (prefer LANTERN_TOKEN to avoid shell history exposure)")

	return cmd
}

// AuthStatus represents authentication status for JSON output.
type AuthStatus struct {
	Server   string `json:"server"`
	Source   string `json:"source"`
	Operator string `json:"operator"`
	Role     string `json:"role"`
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  `Validate the stored operator token against the server and show who it belongs to.`,
		Example: `  lantern auth status
  lantern auth status --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			env, err := loadServerEnv()
			if err != nil {
				return err
			}

			spin := out.Spinner("Checking credentials")
			spin.Start()

			op, err := env.apiClient().ValidateToken(cmd.Context())
			if err != nil {
				spin.StopWithFailure("Credentials invalid")
				return clierrors.CredentialsInvalid(err)
			}

			spin.StopWithSuccess("Authenticated")

			if out.JSON {
				return out.PrintJSON(AuthStatus{
					Server:   env.url,
					Source:   string(env.source),
					Operator: op.Name,
					Role:     op.Role,
				})
			}

			out.Print("Server:   %s\n", env.url)
			out.Print("Source:   %s\n", env.source)
			out.Print("Operator: %s\n", op.Name)
			out.Print("Role:     %s\n", op.Role)

			return nil
		},
	}
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "logout",
		Short:   "Clear stored credentials",
		Long:    `Remove the stored operator token for the configured server from the keyring and the fallback file.`,
		Example: `  lantern auth logout`,
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			serverURL := config.Load().ServerURL()
			if serverURL == "" {
				return clierrors.ServerNotConfigured()
			}

			if err := auth.DeleteToken(serverURL); err != nil {
				if errors.Is(err, auth.ErrNoCredentials) {
					out.Muted("No stored credentials found")
					return nil
				}

				return clierrors.ConfigFailed("clear credentials", err)
			}

			out.Success("Logged out from %s", serverURL)

			if os.Getenv(auth.EnvVarName) != "" {
				out.Println()
				out.Warning("%s environment variable is still set", auth.EnvVarName)
			}

			return nil
		},
	}
}
