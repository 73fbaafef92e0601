// Package client provides the REST client for one-shot reads from the
// command-and-control server.
//
// The client authenticates with the operator token and provides methods for:
//   - Validating the token and resolving the operator identity
//   - Listing operators
//   - Listing sessions
//   - Reading license information
//
// Live events and shell tunnels use package realtime instead.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lantern-c2/lantern/internal/buildinfo"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 4 << 10
)

var (
	// ErrUnauthorized reports a missing, invalid or expired operator token.
	ErrUnauthorized = errors.New("invalid or expired operator token")
	// ErrForbidden reports a token the server refuses for console access.
	ErrForbidden = errors.New("operator token is not allowed to use the console")
	// ErrUnreachable wraps transport failures before any response arrived.
	ErrUnreachable = errors.New("failed to connect to server")
)

// StatusError is returned for responses with an unexpected status code.
type StatusError struct {
	Operation string
	Code      int
	Body      string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Operation, e.Code, e.Body)
}

// Is matches 401 and 403 responses against ErrUnauthorized and ErrForbidden.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	case ErrForbidden:
		return e.Code == http.StatusForbidden
	default:
		return false
	}
}

// Client is the server REST client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Operator is an operator account on the server.
type Operator struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	Online    bool       `json:"online"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Session is an interactive implant session.
type Session struct {
	ID          string     `json:"id"`
	BeaconID    string     `json:"beaconId,omitempty"`
	Hostname    string     `json:"hostname"`
	Username    string     `json:"username"`
	OS          string     `json:"os"`
	Arch        string     `json:"arch"`
	RemoteAddr  string     `json:"remoteAddr"`
	Alive       bool       `json:"alive"`
	ConnectedAt time.Time  `json:"connectedAt"`
	LastCheckin *time.Time `json:"lastCheckin,omitempty"`
}

// License describes one installed server license.
type License struct {
	ID        string     `json:"id"`
	Product   string     `json:"product"`
	Licensee  string     `json:"licensee"`
	Tier      string     `json:"tier"`
	Seats     int        `json:"seats"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the license has passed its expiry at now.
func (l License) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

// New creates a new client for the server at baseURL.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ValidateToken checks the token and returns the operator it belongs to.
func (c *Client) ValidateToken(ctx context.Context) (*Operator, error) {
	resp, err := c.get(ctx, "/api/v1/operators/me")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusForbidden:
		return nil, ErrForbidden
	default:
		return nil, unexpectedStatus("validate token", resp.StatusCode, resp.Body)
	}

	var op Operator
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, fmt.Errorf("failed to parse operator: %w", err)
	}

	return &op, nil
}

// ListOperators returns every operator known to the server.
func (c *Client) ListOperators(ctx context.Context) ([]Operator, error) {
	return getList[Operator](ctx, c, "/api/v1/operators", "list operators")
}

// ListSessions returns the server's sessions.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	return getList[Session](ctx, c, "/api/v1/sessions", "list sessions")
}

// Licenses returns the installed licenses.
func (c *Client) Licenses(ctx context.Context) ([]License, error) {
	return getList[License](ctx, c, "/api/v1/licenses", "list licenses")
}

func getList[T any](ctx context.Context, c *Client, path, operation string) ([]T, error) {
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unexpectedStatus(operation, resp.StatusCode, resp.Body)
	}

	var out listResponse[T]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", operation, err)
	}

	if out.Data == nil {
		return []T{}, nil
	}

	return out.Data, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setRequestHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	return resp, nil
}

func (c *Client) setRequestHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
}

// unexpectedStatus reads a bounded excerpt of body into a StatusError.
func unexpectedStatus(operation string, statusCode int, body io.Reader) error {
	respBody, readErr := io.ReadAll(io.LimitReader(body, maxErrorBody))

	text := strings.TrimSpace(string(respBody))
	if readErr != nil {
		text = fmt.Sprintf("(failed to read body: %v)", readErr)
	}

	return &StatusError{Operation: operation, Code: statusCode, Body: text}
}
