package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/orchv2/dashboard/pkg/cerr"
	"github.com/orchv2/dashboard/pkg/storage"
)

// Record is one session's self-reported status as stored by the status
// server. Progress is a percentage when the agent reports one.
type Record struct {
	State     string `json:"state"`
	Message   string `json:"message,omitempty"`
	Progress  *int   `json:"progress,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Client reads session status records, preferring the status server's
// HTTP API and falling back to the record files themselves when the
// server is down. Both paths carry an explicit timeout so a dead status
// server cannot stall the dashboard.
type Client struct {
	baseURL  string
	client   *http.Client
	fallback storage.Storage
}

func NewClient(baseURL string, timeout time.Duration, fallback storage.Storage) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		fallback: fallback,
	}
}

type allResponse struct {
	Sessions map[string]Record `json:"sessions"`
}

// FetchAll returns the status map keyed by session id. The second
// result reports whether any status source answered; a false value
// means callers should treat all records as missing, not that there
// are no sessions.
func (c *Client) FetchAll(ctx context.Context) (map[string]Record, bool) {
	if records, err := c.fetchHTTP(ctx); err == nil {
		return records, true
	} else {
		slog.DebugContext(ctx, "status server unreachable, trying fallback files",
			slog.Any("error", err))
	}
	if records, err := c.fetchFallback(ctx); err == nil {
		return records, true
	}
	return map[string]Record{}, false
}

func (c *Client) fetchHTTP(ctx context.Context) (map[string]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status server returned %d", resp.StatusCode)
	}
	var body allResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.Sessions == nil {
		body.Sessions = map[string]Record{}
	}
	return body.Sessions, nil
}

func (c *Client) fetchFallback(ctx context.Context) (map[string]Record, error) {
	if c.fallback == nil {
		return nil, storage.ErrNotFound
	}
	paths, err := c.fallback.List(ctx, "")
	if err != nil {
		return nil, err
	}
	records := map[string]Record{}
	for _, p := range paths {
		base := path.Base(p)
		if !strings.HasSuffix(base, ".json") {
			continue
		}
		data, err := c.fallback.Read(ctx, base)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records[strings.TrimSuffix(base, ".json")] = rec
	}
	return records, nil
}

// Healthy reports whether the status server itself is answering.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.fetchHTTP(ctx)
	return err == nil
}

// Delete removes a session's status record. Used after killing a
// session so a stale record does not linger; callers treat failures as
// best-effort.
func (c *Client) Delete(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/status/"+sessionID, nil)
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to build status delete request", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return cerr.NewError(cerr.Unavailable, "status server unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return cerr.NewError(cerr.Unavailable, fmt.Sprintf("status delete returned %d", resp.StatusCode), nil)
	}
	return nil
}
