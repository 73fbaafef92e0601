// Package errors provides structured CLI error types for lantern.
//
// CLIError wraps errors with user-facing messages, hints, and exit codes
// to provide consistent, actionable error output across all commands.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Exit codes for CLI errors.
const (
	ExitSuccess = 0  // Successful execution
	ExitGeneral = 1  // General error
	ExitAuth    = 2  // Authentication error
	ExitNetwork = 3  // Network/API error
	ExitConfig  = 4  // Configuration error
	ExitTimeout = 5  // Operation timed out
	ExitSession = 6  // Remote session or tunnel failure
	ExitUsage   = 64 // Command line usage error (BSD convention)
)

// CLIError represents a user-facing CLI error with actionable guidance.
type CLIError struct {
	// Message is the primary error message shown to the user.
	Message string

	// Hint provides actionable guidance on how to fix the error.
	Hint string

	// Cause is the underlying error, if any.
	Cause error

	// Code is the exit code for the CLI.
	Code int
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// New creates a new CLIError with the given message and exit code.
func New(code int, message string) *CLIError {
	return &CLIError{
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an existing error with a CLIError.
func Wrap(code int, message string, cause error) *CLIError {
	return &CLIError{
		Message: message,
		Cause:   cause,
		Code:    code,
	}
}

// WithHint adds a hint to the error.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// As is a convenience function for errors.As with CLIError.
func As(err error, target **CLIError) bool {
	return errors.As(err, target)
}

// --- Common error constructors ---

// NotAuthenticated returns an error indicating missing credentials.
func NotAuthenticated() *CLIError {
	return &CLIError{
		Message: "Not authenticated",
		Hint:    "Run 'lantern auth login' or set LANTERN_TOKEN",
		Code:    ExitAuth,
	}
}

// AuthFailed returns an error for failed authentication.
func AuthFailed(cause error) *CLIError {
	return &CLIError{
		Message: "Authentication failed",
		Hint:    "Check your operator token or run 'lantern auth login'",
		Cause:   cause,
		Code:    ExitAuth,
	}
}

// CredentialsInvalid returns an error for invalid stored credentials.
func CredentialsInvalid(cause error) *CLIError {
	return &CLIError{
		Message: "Credentials invalid",
		Hint:    "Run 'lantern auth login' to re-authenticate",
		Cause:   cause,
		Code:    ExitAuth,
	}
}

// CannotPrompt returns an error when interactive prompts are unavailable.
func CannotPrompt(envVar string) *CLIError {
	return &CLIError{
		Message: "Cannot prompt in non-interactive mode",
		Hint:    fmt.Sprintf("Set %s environment variable instead", envVar),
		Code:    ExitUsage,
	}
}

// TokenEmpty returns an error when the operator token is empty.
func TokenEmpty() *CLIError {
	return &CLIError{
		Message: "Operator token cannot be empty",
		Hint:    "Enter a valid token or set LANTERN_TOKEN environment variable",
		Code:    ExitAuth,
	}
}

// ServerNotConfigured returns an error when no server URL is set.
func ServerNotConfigured() *CLIError {
	return &CLIError{
		Message: "Server URL not configured",
		Hint:    "Run 'lantern config set server.url https://<host>' or pass --server",
		Code:    ExitConfig,
	}
}

// ConfigFailed returns an error for configuration save failures.
func ConfigFailed(operation string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to %s", operation),
		Hint:    "Check file permissions for your lantern config directory or run 'lantern doctor'",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// statusCoder is implemented by transport errors that carry the HTTP status
// the server answered with.
type statusCoder interface {
	HTTPStatus() int
}

// ConnectFailed returns an error for a failed connection attempt. It
// inspects the cause to pick a specific hint.
func ConnectFailed(cause error) *CLIError {
	e := &CLIError{
		Message: "Failed to connect to server",
		Hint:    "Run 'lantern doctor' to diagnose connectivity",
		Cause:   cause,
		Code:    ExitNetwork,
	}

	var (
		sc     statusCoder
		dnsErr *net.DNSError
		netErr net.Error
	)

	switch {
	case cause == nil:
	case errors.As(cause, &sc) && (sc.HTTPStatus() == http.StatusUnauthorized || sc.HTTPStatus() == http.StatusForbidden):
		e.Message = "Server rejected the operator token"
		e.Hint = "Run 'lantern auth login' to refresh your token"
		e.Code = ExitAuth
	case errors.As(cause, &dnsErr):
		e.Hint = "Check server.url; the host could not be resolved"
	case errors.Is(cause, syscall.ECONNREFUSED):
		e.Hint = "The server is not accepting connections; check that it is running"
	case errors.Is(cause, context.DeadlineExceeded), errors.As(cause, &netErr) && netErr.Timeout():
		e.Hint = "The server did not answer in time; raise realtime.dial_timeout or check the network"
		e.Code = ExitTimeout
	}

	return e
}

// InvalidServerURL returns an error for a server URL that cannot be dialed.
func InvalidServerURL(cause error) *CLIError {
	return &CLIError{
		Message: "Server URL is not usable",
		Hint:    "server.url must be an http:// or https:// URL",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// ReconnectExhausted returns an error when automatic reconnection gave up.
func ReconnectExhausted(attempts int) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Connection lost after %d reconnection attempts", attempts),
		Hint:    "Check the server and run the command again",
		Code:    ExitNetwork,
	}
}

// NotConnected returns an error for a send attempted without a live connection.
func NotConnected(cause error) *CLIError {
	return &CLIError{
		Message: "Not connected to server",
		Hint:    "The message was not sent; retry once the connection is back",
		Cause:   cause,
		Code:    ExitNetwork,
	}
}

// SessionRequired returns an error when a session id is required but missing.
func SessionRequired() *CLIError {
	return &CLIError{
		Message: "Session required",
		Hint:    "Pass the session id: lantern shell <session-id>",
		Code:    ExitUsage,
	}
}

// ShellStartTimedOut returns an error when a tunnel never produced output.
func ShellStartTimedOut(sessionID, timeout string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Shell on session %s did not start within %s", sessionID, timeout),
		Hint:    "The session may be offline; check 'lantern events' or raise shell.start_timeout",
		Code:    ExitTimeout,
	}
}

// TunnelClosed returns an error when the remote shell ends abnormally.
func TunnelClosed(sessionID string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Shell tunnel to session %s closed", sessionID),
		Hint:    "The connection dropped; start a new shell once it is back",
		Cause:   cause,
		Code:    ExitSession,
	}
}

// TranscriptNotFound returns an error for an unknown transcript.
func TranscriptNotFound(id string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Transcript not found: %s", id),
		Hint:    "Run 'lantern history list' to see recorded shells",
		Code:    ExitGeneral,
	}
}

// InvalidRules returns an error for an unreadable notification rules file.
func InvalidRules(path string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Invalid notification rules: %s", path),
		Hint:    "Rules files are YAML or TOML keyed by event type",
		Cause:   cause,
		Code:    ExitConfig,
	}
}
