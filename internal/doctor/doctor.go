// Package doctor provides diagnostic checks for lantern.
//
// This package implements a check framework that validates:
//   - Server configuration
//   - REST API reachability and response time
//   - Operator token validity and credential source
//   - Realtime channel handshake and retry schedule
//   - CLI version against latest release
package doctor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lantern-c2/lantern/internal/auth"
	"github.com/lantern-c2/lantern/internal/buildinfo"
	"github.com/lantern-c2/lantern/internal/client"
	"github.com/lantern-c2/lantern/internal/realtime"
	"github.com/lantern-c2/lantern/internal/update"
)

// Status is the outcome of one check.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

var statusNames = [...]string{StatusPass: "pass", StatusWarn: "warn", StatusFail: "fail"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}

	return statusNames[s]
}

// MarshalText renders the status as pass, warn or fail.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	realtimeCheckTimeout = 10 * time.Second
	versionCheckTimeout  = 5 * time.Second
)

// Result holds the outcome of a single check.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Check is a diagnostic check function.
type Check func(ctx context.Context) Result

// Env is what the default checks inspect.
type Env struct {
	ServerURL   string
	Token       string
	TokenSource auth.CredentialSource
	Realtime    realtime.Config

	// Dialer overrides the realtime transport. Nil uses websockets.
	Dialer realtime.Dialer
	// CheckLatest overrides the release lookup. Nil uses GitHub Releases.
	CheckLatest func(ctx context.Context, current string) (*update.Info, error)
}

// Runner executes diagnostic checks.
type Runner struct {
	checks []namedCheck
}

type namedCheck struct {
	name  string
	check Check
}

// New creates a runner with the default checks for env.
func New(env Env) *Runner {
	r := &Runner{}

	r.AddCheck("Server", env.checkServer)
	r.AddCheck("API Connectivity", env.checkAPIConnectivity)
	r.AddCheck("Authentication", env.checkAuthentication)
	r.AddCheck("Realtime Channel", env.checkRealtime)
	r.AddCheck("CLI Version", env.checkCLIVersion)

	return r
}

// AddCheck registers a diagnostic check.
func (r *Runner) AddCheck(name string, check Check) {
	r.checks = append(r.checks, namedCheck{name: name, check: check})
}

// Run executes all registered checks and returns the results.
func (r *Runner) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(r.checks))

	for _, nc := range r.checks {
		result := nc.check(ctx)
		result.Name = nc.name
		results = append(results, result)
	}

	return results
}

// Summary returns counts of passed, failed, and warning checks.
func Summary(results []Result) (passed, failed, warnings int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			passed++
		case StatusFail:
			failed++
		case StatusWarn:
			warnings++
		}
	}

	return passed, failed, warnings
}

// Report is the machine-readable form of a doctor run.
type Report struct {
	Checks   []Result `json:"checks"`
	Passed   int      `json:"passed"`
	Failed   int      `json:"failed"`
	Warnings int      `json:"warnings"`
}

// NewReport summarizes results.
func NewReport(results []Result) Report {
	passed, failed, warnings := Summary(results)

	return Report{Checks: results, Passed: passed, Failed: failed, Warnings: warnings}
}

func (e Env) checkServer(context.Context) Result {
	if e.ServerURL == "" {
		return Result{
			Status:  StatusFail,
			Message: "No server configured",
			Detail:  "Run 'lantern config set server.url <url>' or pass --server",
		}
	}

	endpoint, err := realtime.EndpointURL(e.ServerURL, "")
	if err != nil {
		return Result{
			Status:  StatusFail,
			Message: e.ServerURL,
			Detail:  err.Error(),
		}
	}

	return Result{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s (realtime %s)", e.ServerURL, strings.TrimSuffix(endpoint, "?token=")),
	}
}

// checkAPIConnectivity tests connection to the REST API. An auth rejection
// still proves the server is reachable.
func (e Env) checkAPIConnectivity(ctx context.Context) Result {
	if e.ServerURL == "" {
		return Result{Status: StatusWarn, Message: "Skipped (no server configured)"}
	}

	start := time.Now()

	_, err := client.New(e.ServerURL, "doctor-check").ValidateToken(ctx)
	elapsed := time.Since(start)

	if err != nil && !errors.Is(err, client.ErrUnauthorized) && !errors.Is(err, client.ErrForbidden) {
		return Result{
			Status:  StatusFail,
			Message: e.ServerURL,
			Detail:  err.Error(),
		}
	}

	return Result{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s (%dms)", e.ServerURL, elapsed.Milliseconds()),
	}
}

// checkAuthentication validates the stored operator token.
func (e Env) checkAuthentication(ctx context.Context) Result {
	if e.Token == "" {
		return Result{
			Status:  StatusFail,
			Message: "Not authenticated",
			Detail:  "Run 'lantern auth login' to authenticate",
		}
	}

	if e.ServerURL == "" {
		return Result{
			Status:  StatusWarn,
			Message: fmt.Sprintf("Token present (via %s), server unknown", e.TokenSource),
		}
	}

	op, err := client.New(e.ServerURL, e.Token).ValidateToken(ctx)
	if err != nil {
		return Result{
			Status:  StatusFail,
			Message: fmt.Sprintf("Invalid credentials (via %s)", e.TokenSource),
			Detail:  err.Error(),
		}
	}

	return Result{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s, %s (via %s)", op.Name, op.Role, e.TokenSource),
	}
}

// checkRealtime opens and closes one realtime connection.
func (e Env) checkRealtime(ctx context.Context) Result {
	if e.ServerURL == "" || e.Token == "" {
		return Result{Status: StatusWarn, Message: "Skipped (server or token missing)"}
	}

	cfg := e.Realtime
	cfg.ServerURL = e.ServerURL
	cfg.MaxReconnectAttempts = -1

	opts := []realtime.Option{}
	if e.Dialer != nil {
		opts = append(opts, realtime.WithDialer(e.Dialer))
	}

	rt := realtime.New(cfg, opts...)
	defer rt.Disconnect()

	checkCtx, cancel := context.WithTimeout(ctx, realtimeCheckTimeout)
	defer cancel()

	start := time.Now()

	if err := rt.Connect(checkCtx, e.Token); err != nil {
		msg := "Handshake failed"

		var hsErr *realtime.HandshakeError
		if errors.As(err, &hsErr) && (hsErr.StatusCode == http.StatusUnauthorized || hsErr.StatusCode == http.StatusForbidden) {
			msg = "Token rejected by the realtime endpoint"
		}

		return Result{
			Status:  StatusFail,
			Message: msg,
			Detail:  err.Error(),
		}
	}

	return Result{
		Status:  StatusPass,
		Message: fmt.Sprintf("Connected (%dms)", time.Since(start).Milliseconds()),
		Detail:  "Reconnect schedule: " + retrySchedule(e.Realtime),
	}
}

// retrySchedule renders the reconnect delays for cfg.
func retrySchedule(cfg realtime.Config) string {
	cfg = cfg.WithDefaults()

	n := cfg.MaxReconnectAttempts
	if n < 0 || n > 6 {
		n = 6
	}

	delays := realtime.BackoffDelays(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay, n)

	parts := make([]string, len(delays))
	for i, d := range delays {
		parts[i] = d.String()
	}

	schedule := strings.Join(parts, ", ")

	switch {
	case cfg.MaxReconnectAttempts < 0:
		schedule += ", ... (unlimited)"
	case cfg.MaxReconnectAttempts > n:
		schedule += fmt.Sprintf(", ... (%d attempts)", cfg.MaxReconnectAttempts)
	}

	return schedule
}

// checkCLIVersion checks the CLI version against the latest release.
func (e Env) checkCLIVersion(ctx context.Context) Result {
	current := buildinfo.Version

	if current == "dev" {
		return Result{
			Status:  StatusWarn,
			Message: "Development build (version check skipped)",
		}
	}

	if update.IsDisabled() {
		return Result{
			Status:  StatusPass,
			Message: fmt.Sprintf("v%s (update checks disabled)", current),
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, versionCheckTimeout)
	defer cancel()

	checkLatest := e.CheckLatest
	if checkLatest == nil {
		updater, err := update.NewUpdater()
		if err != nil {
			return Result{
				Status:  StatusWarn,
				Message: fmt.Sprintf("v%s (could not check for updates)", current),
				Detail:  err.Error(),
			}
		}

		checkLatest = updater.CheckLatest
	}

	info, err := checkLatest(checkCtx, current)
	if err != nil {
		return Result{
			Status:  StatusWarn,
			Message: fmt.Sprintf("v%s (could not check for updates)", current),
			Detail:  err.Error(),
		}
	}

	if info.UpdateAvailable {
		return Result{
			Status:  StatusWarn,
			Message: fmt.Sprintf("v%s (v%s available)", current, info.LatestVersion),
			Detail:  "Run 'lantern update' to update",
		}
	}

	return Result{
		Status:  StatusPass,
		Message: fmt.Sprintf("v%s (latest)", current),
	}
}

// Reporter receives rendered doctor lines. The status methods prefix their
// line with the matching symbol.
type Reporter interface {
	Success(format string, args ...any)
	Warning(format string, args ...any)
	Failure(format string, args ...any)
	Muted(format string, args ...any)
}

// RenderResults writes one aligned line per result, plus its detail.
func RenderResults(results []Result, r Reporter) {
	width := 0
	for _, res := range results {
		width = max(width, len(res.Name))
	}

	width += 4

	for _, res := range results {
		line := r.Success

		switch res.Status {
		case StatusWarn:
			line = r.Warning
		case StatusFail:
			line = r.Failure
		}

		line("%-*s%s", width, res.Name, res.Message)

		if res.Detail != "" {
			r.Muted("    %s", res.Detail)
		}
	}
}
