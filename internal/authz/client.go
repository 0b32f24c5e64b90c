// Package authz talks to the external document service that owns user
// identity and per-document access control. The gateway trusts its verdicts
// and keeps no state between calls.
package authz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var (
	// ErrBackendUnavailable covers transport failures, timeouts and
	// unexpected HTTP statuses from the document service.
	ErrBackendUnavailable = errors.New("authorization backend unavailable")
	// ErrUnauthenticated means the service explicitly reported no session
	// for the forwarded credentials.
	ErrUnauthenticated = errors.New("no authenticated session")
)

// Identity is the resolved caller.
type Identity struct {
	UserID string
}

// Abilities is the document service's access verdict for one user/document
// pair. Retrieve gates whether a connection may exist at all; Update gates
// whether it may submit writes.
type Abilities struct {
	Retrieve bool
	Update   bool
}

// forwarded verbatim so the document service sees the browser's own
// credentials.
var credentialHeaders = []string{"Cookie", "Authorization"}

type Config struct {
	BaseURL      string
	IdentityPath string
	// DocumentPath is a fmt template with one %s verb for the document id.
	DocumentPath string
	Timeout      time.Duration
}

type Client struct {
	http   *http.Client
	cfg    Config
	logger *slog.Logger
}

func NewClient(logger *slog.Logger, cfg Config) *Client {
	return &Client{
		http:   &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger.With(slog.String("component", "authz_client")),
	}
}

// ResolveIdentity asks the document service who the caller is, forwarding the
// original request credentials untouched.
func (c *Client) ResolveIdentity(ctx context.Context, headers http.Header) (Identity, error) {
	body, err := c.get(ctx, c.cfg.BaseURL+c.cfg.IdentityPath, headers)
	if err != nil {
		return Identity{}, err
	}

	// The exact response schema belongs to the collaborator service; probe
	// the known spellings of the user id field.
	for _, path := range []string{"user.id", "id"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
			return Identity{UserID: v.String()}, nil
		}
	}
	c.logger.Error("Identity response carried no recognizable user id")
	return Identity{}, fmt.Errorf("%w: identity response missing user id", ErrBackendUnavailable)
}

// FetchDocumentAbilities retrieves the access verdict for one document,
// forwarding the original request credentials untouched.
func (c *Client) FetchDocumentAbilities(ctx context.Context, documentID string, headers http.Header) (Abilities, error) {
	url := c.cfg.BaseURL + fmt.Sprintf(c.cfg.DocumentPath, documentID)
	body, err := c.get(ctx, url, headers)
	if err != nil && !errors.Is(err, ErrUnauthenticated) {
		return Abilities{}, err
	}
	if err != nil {
		// A 401/403 on the document endpoint is a verdict, not an outage.
		return Abilities{}, nil
	}

	abilities := Abilities{
		Retrieve: firstBool(body, "abilities.retrieve", "retrieve"),
		Update:   firstBool(body, "abilities.update", "update"),
	}
	return abilities, nil
}

func (c *Client) get(ctx context.Context, url string, headers http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	for _, name := range credentialHeaders {
		for _, v := range headers.Values(name) {
			req.Header.Add(name, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("Authorization backend call failed",
			slog.String("url", url),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthenticated
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.logger.Error("Authorization backend returned non-success status",
			slog.String("url", url),
			slog.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !gjson.ValidBytes(body) || !strings.Contains(resp.Header.Get("Content-Type"), "json") {
		return nil, fmt.Errorf("%w: non-JSON response", ErrBackendUnavailable)
	}
	return body, nil
}

func firstBool(body []byte, paths ...string) bool {
	for _, path := range paths {
		if v := gjson.GetBytes(body, path); v.Exists() {
			return v.Bool()
		}
	}
	return false
}
