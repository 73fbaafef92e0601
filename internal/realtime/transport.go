package realtime

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lantern-c2/lantern/internal/buildinfo"
)

// ErrInvalidEndpoint is returned when the server URL cannot be turned into a
// websocket endpoint.
var ErrInvalidEndpoint = errors.New("realtime: invalid endpoint")

const (
	endpointPath  = "/ws"
	tokenParam    = "token"
	maxFrameBytes = 4 << 20
)

// HandshakeError is returned when the server answers the upgrade request
// with a non-101 status, typically 401 or 403 for a rejected credential.
type HandshakeError struct {
	StatusCode int
	Status     string
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake: %s: %v", e.Status, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// HTTPStatus returns the status code the server answered with.
func (e *HandshakeError) HTTPStatus() int { return e.StatusCode }

// Conn is one physical websocket. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens a connection to a websocket endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// EndpointURL derives the websocket endpoint from the server base URL. The
// credential travels in the token query parameter. A TLS server yields wss.
func EndpointURL(serverURL, credential string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}

	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}

	u.Path = strings.TrimRight(u.Path, "/") + endpointPath
	u.RawPath = ""
	u.Fragment = ""

	q := u.Query()
	q.Set(tokenParam, credential)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// WebsocketDialer is the default Dialer.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	TLSConfig        *tls.Config
	Header           http.Header
}

// Dial performs the websocket handshake.
func (d *WebsocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	header := d.Header.Clone()
	if header == nil {
		header = http.Header{}
	}

	if header.Get("User-Agent") == "" {
		header.Set("User-Agent", buildinfo.UserAgent())
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		TLSClientConfig:  d.TLSConfig,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
		}

		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetReadLimit(maxFrameBytes)

	return conn, nil
}

// redactEndpoint strips the credential before an endpoint is logged.
func redactEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "<invalid>"
	}

	q := u.Query()
	if q.Has(tokenParam) {
		q.Set(tokenParam, "REDACTED")
		u.RawQuery = q.Encode()
	}

	return u.String()
}

func isCleanClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
