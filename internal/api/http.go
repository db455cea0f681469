package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"
)

// DefaultTimeout bounds every API call when HTTPClientOpts.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response body is kept in errors.
const maxErrorBody = 512

// StatusError is a non-2xx response that is neither 404 nor retryable.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// HTTPClient implements Client over JSON/HTTP. Every request carries the
// session's bearer token.
type HTTPClient struct {
	baseURL  string
	http     *http.Client
	viewerID string
}

// HTTPClientOpts holds parameters for creating an HTTPClient.
type HTTPClientOpts struct {
	BaseURL  string
	Token    string
	ViewerID string        // defaults to the token's subject claim
	Timeout  time.Duration // defaults to DefaultTimeout

	// Transport overrides the underlying HTTP client (tests).
	Transport *http.Client
}

// NewHTTPClient creates an HTTPClient.
func NewHTTPClient(opts HTTPClientOpts) (*HTTPClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("api: http client: base url is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("api: http client: base url: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx := context.Background()
	if opts.Transport != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.Transport)
	}
	var hc *http.Client
	if opts.Token != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: opts.Token,
			TokenType:   "Bearer",
		}))
	} else if opts.Transport != nil {
		copied := *opts.Transport
		hc = &copied
	} else {
		hc = &http.Client{}
	}
	hc.Timeout = timeout

	viewer := opts.ViewerID
	if viewer == "" && opts.Token != "" {
		sub, err := SubjectFromToken(opts.Token)
		if err != nil {
			return nil, fmt.Errorf("api: http client: viewer id: %w", err)
		}
		viewer = sub
	}

	return &HTTPClient{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		http:     hc,
		viewerID: viewer,
	}, nil
}

// ViewerID returns the id of the authenticated viewer, used to classify
// chat senders.
func (c *HTTPClient) ViewerID() string { return c.viewerID }

// SubjectFromToken extracts the "sub" claim of a JWT without verifying its
// signature. The server verifies the token; the client only needs to know
// who it is speaking for.
func SubjectFromToken(token string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject claim")
	}
	return claims.Subject, nil
}

// GetRequest fetches GET /service-requests/{id}.
func (c *HTTPClient) GetRequest(ctx context.Context, id string) (*ServiceRequest, error) {
	var req ServiceRequest
	if err := c.do(ctx, "get request", http.MethodGet, "/service-requests/"+url.PathEscape(id), nil, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListRequests fetches GET /service-requests.
func (c *HTTPClient) ListRequests(ctx context.Context) ([]ServiceRequest, error) {
	var reqs []ServiceRequest
	if err := c.do(ctx, "list requests", http.MethodGet, "/service-requests", nil, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// GetTechnicianProfiles fetches GET /technicians?user_id=.
func (c *HTTPClient) GetTechnicianProfiles(ctx context.Context, userID string) ([]TechnicianProfile, error) {
	var profiles []TechnicianProfile
	path := "/technicians?" + url.Values{"user_id": {userID}}.Encode()
	if err := c.do(ctx, "get technician", http.MethodGet, path, nil, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// UpdateStatus sends PATCH /service-requests/{id}/status.
func (c *HTTPClient) UpdateStatus(ctx context.Context, id string, update StatusUpdate) error {
	return c.do(ctx, "update status", http.MethodPatch, "/service-requests/"+url.PathEscape(id)+"/status", update, nil)
}

// ListMessages fetches GET /conversations/{id}/messages.
func (c *HTTPClient) ListMessages(ctx context.Context, conversationID string) ([]RawMessage, error) {
	var msgs []RawMessage
	if err := c.do(ctx, "list messages", http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/messages", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// PostMessage sends POST /conversations/{id}/messages.
func (c *HTTPClient) PostMessage(ctx context.Context, conversationID string, msg OutgoingMessage) (*RawMessage, error) {
	var out RawMessage
	if err := c.do(ctx, "post message", http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/messages", msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one JSON round trip. Transport failures, 429 and 5xx responses
// are returned as TransientError; 404 as ErrNotFound.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: %s: encode: %w", op, err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("api: %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("api: %s: %w", op, err)
		}
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("api: %s: %w", op, ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &TransientError{Op: op, Err: readStatusError(resp)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("api: %s: %w", op, readStatusError(resp))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransientError{Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func readStatusError(resp *http.Response) *StatusError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}
