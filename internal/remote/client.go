// Package remote is the HTTP client for the hosted record store. It speaks
// the PostgREST dialect: one table per collection under /rest/v1.
package remote

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

	"github.com/matheus3301/offsync/internal/offline"
	"go.uber.org/zap"
)

const maxErrorBody = 512

// Client talks to the remote store. It implements offline.RemoteStore.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for baseURL. A zero timeout means 30s.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Upsert inserts doc into collection, merging on id when doc carries one.
func (c *Client) Upsert(ctx context.Context, collection string, doc map[string]any) (offline.UpsertResult, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return offline.UpsertResult{}, offline.Permanent(fmt.Errorf("marshal record: %w", err))
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.tableURL(collection, url.Values{"on_conflict": {"id"}}), bytes.NewReader(body))
	if err != nil {
		return offline.UpsertResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=representation")

	var rows []map[string]any
	if err := c.do(req, &rows); err != nil {
		return offline.UpsertResult{}, err
	}
	if len(rows) == 0 {
		return offline.UpsertResult{}, errors.New("remote: upsert returned no rows")
	}

	res := offline.UpsertResult{}
	if id, ok := rows[0]["id"]; ok && id != nil {
		res.ID = fmt.Sprint(id)
	}
	if s, ok := rows[0]["updated_at"].(string); ok {
		res.UpdatedAt, _ = parseTimestamp(s)
	}
	c.logger.Debug("record upserted", zap.String("collection", collection), zap.String("id", res.ID))
	return res, nil
}

// GetUpdatedAt returns the last modification time of record id in
// collection. found is false when the record does not exist.
func (c *Client) GetUpdatedAt(ctx context.Context, collection, id string) (time.Time, bool, error) {
	q := url.Values{"id": {"eq." + id}, "select": {"updated_at"}}
	req, err := c.newRequest(ctx, http.MethodGet, c.tableURL(collection, q), nil)
	if err != nil {
		return time.Time{}, false, err
	}

	var rows []struct {
		UpdatedAt string `json:"updated_at"`
	}
	if err := c.do(req, &rows); err != nil {
		return time.Time{}, false, err
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	if rows[0].UpdatedAt == "" {
		// Rows without a timestamp never win a conflict.
		return time.Time{}, true, nil
	}
	t, err := parseTimestamp(rows[0].UpdatedAt)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("remote: updated_at of %s/%s: %w", collection, id, err)
	}
	return t, true, nil
}

// Ping checks that the backend answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodHead, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote: ping: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}

func (c *Client) tableURL(collection string, q url.Values) string {
	u := c.baseURL + "/rest/v1/" + url.PathEscape(collection)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, offline.Permanent(fmt.Errorf("remote: build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// do sends req and decodes a 2xx JSON body into out.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("remote: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return &StatusError{Code: resp.StatusCode, Body: msg}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("remote: decode response: %w", err)
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
}

func parseTimestamp(s string) (time.Time, error) {
	var err error
	for _, layout := range timestampLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
