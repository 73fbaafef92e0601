package main

import (
	"context"
	"errors"

	"github.com/lantern-c2/lantern/internal/auth"
	"github.com/lantern-c2/lantern/internal/client"
	"github.com/lantern-c2/lantern/internal/config"
	clierrors "github.com/lantern-c2/lantern/internal/errors"
	"github.com/lantern-c2/lantern/internal/observability"
	"github.com/lantern-c2/lantern/internal/output"
	"github.com/lantern-c2/lantern/internal/realtime"
)

// serverEnv is the resolved server, credential and configuration that the
// server-facing commands share.
type serverEnv struct {
	cfg    *config.Config
	url    string
	token  string
	source auth.CredentialSource
}

// loadServerEnv resolves the server URL and the operator token for it.
// Returns a CLIError if either is missing.
func loadServerEnv() (*serverEnv, error) {
	cfg := config.Load()

	url := cfg.ServerURL()
	if url == "" {
		return nil, clierrors.ServerNotConfigured()
	}

	source, token := auth.GetCredentials(url)
	if token == "" {
		return nil, clierrors.NotAuthenticated()
	}

	return &serverEnv{cfg: cfg, url: url, token: token, source: source}, nil
}

func (e *serverEnv) apiClient() *client.Client {
	return client.New(e.url, e.token)
}

// realtimeClient builds an unconnected realtime client using the configured
// lifecycle settings and the command's logger.
func (e *serverEnv) realtimeClient(ctx context.Context, opts ...realtime.Option) *realtime.Client {
	logger := observability.FromContext(ctx)
	opts = append([]realtime.Option{realtime.WithLogger(logger)}, opts...)

	return realtime.New(e.cfg.Realtime(), opts...)
}

// connect opens rt behind a spinner. A failed first attempt is returned; the
// client keeps retrying in the background.
func (e *serverEnv) connect(ctx context.Context, out *output.Writer, rt *realtime.Client) error {
	spin := out.Spinner("Connecting to " + e.url)
	spin.Start()

	if err := rt.Connect(ctx, e.token); err != nil {
		spin.StopWithFailure("Connection failed")

		if errors.Is(err, realtime.ErrInvalidEndpoint) {
			return clierrors.InvalidServerURL(err)
		}

		return clierrors.ConnectFailed(err)
	}

	spin.Stop()

	return nil
}

// apiError maps a REST client error to a CLIError.
func apiError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	switch {
	case errors.Is(err, client.ErrUnauthorized), errors.Is(err, client.ErrForbidden):
		return clierrors.CredentialsInvalid(err)
	case errors.Is(err, client.ErrUnreachable):
		return clierrors.ConnectFailed(err)
	default:
		return clierrors.Wrap(clierrors.ExitGeneral, "Server request failed", err).
			WithHint("Run 'lantern doctor' to diagnose the server connection")
	}
}
