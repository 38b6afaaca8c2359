package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/loopviz/loopviz/internal/relay"
)

// HTTPClient makes REST calls to the relay.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8080").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// BaseURLFromSurface derives the relay's HTTP base from its surface URL.
func BaseURLFromSurface(surfaceURL string) (string, error) {
	u, err := url.Parse(surfaceURL)
	if err != nil {
		return "", fmt.Errorf("parse surface url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("surface url %q: scheme must be ws or wss", surfaceURL)
	}
	u.Path, u.RawQuery = "", ""
	return u.String(), nil
}

// SessionInfoMsg carries a /api/session response.
type SessionInfoMsg struct {
	Info relay.SessionInfo
	Err  error
}

// GetSession fetches /api/session.
func (c *HTTPClient) GetSession(ctx context.Context) (*relay.SessionInfo, error) {
	var info relay.SessionInfo
	if err := c.get(ctx, "/api/session", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// FetchSession wraps GetSession as a Bubble Tea command.
func (c *HTTPClient) FetchSession(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		info, err := c.GetSession(ctx)
		if err != nil {
			return SessionInfoMsg{Err: err}
		}
		return SessionInfoMsg{Info: *info}
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
