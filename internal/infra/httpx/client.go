// Package httpx wraps the outbound HTTP client used by all connectors.
// Low-level transport failures are categorized into a closed enum here, at
// the point they occur, so downstream classification never has to re-derive
// the category from free-text error messages.
package httpx

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// FailureKind tags a transport-level failure.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureTimeout
	FailureConnection
	FailureDNS
	FailureTLS
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureConnection:
		return "connection"
	case FailureDNS:
		return "dns"
	case FailureTLS:
		return "tls"
	default:
		return "unknown"
	}
}

// TransportError is a categorized low-level failure (no HTTP response).
type TransportError struct {
	Kind FailureKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure (%s): %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a platform-native HTTP failure: status code plus parsed body.
// Connectors also return it with a 2xx status when the platform embeds an
// error object in an otherwise successful response.
type APIError struct {
	StatusCode int
	Body       map[string]any
	Raw        []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform API error: status %d", e.StatusCode)
}

// Client is the shared outbound HTTP client. Every call carries the fixed
// request timeout; there is no mid-flight cancellation beyond context.
type Client struct {
	http *http.Client
}

// NewClient creates a client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
	}
}

// DoJSON executes a JSON request and decodes the JSON response. A non-2xx
// status returns *APIError with the parsed body; a failure before any
// response returns *TransportError with its categorized kind.
func (c *Client) DoJSON(
	ctx context.Context,
	method, url string,
	headers map[string]string,
	body any,
) (map[string]any, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Kind: Categorize(err), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransportError{Kind: Categorize(err), Err: err}
	}

	var parsed map[string]any
	if len(raw) > 0 {
		// Best effort: error bodies are not always JSON.
		_ = json.Unmarshal(raw, &parsed)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: parsed, Raw: raw}
	}
	return parsed, nil
}

// Categorize maps a low-level error into a FailureKind.
func Categorize(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return FailureDNS
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return FailureTLS
	}
	var unknownAuthErr x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthErr) {
		return FailureTLS
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return FailureTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errno, ok := opErr.Err.(syscall.Errno); ok {
			switch errno {
			case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE:
				return FailureConnection
			case syscall.ETIMEDOUT:
				return FailureTimeout
			}
		}
		return FailureConnection
	}

	return FailureUnknown
}
