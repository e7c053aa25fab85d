// Package syncthing is a minimal client for the Syncthing REST API, used to
// confirm that files copied into the replica folder reached the peer.
package syncthing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mediaferry/internal/config"
	"mediaferry/internal/services"
)

const userAgent = "mediaferry/1.0"

// Client talks to a single Syncthing instance.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New constructs a client. A non-positive timeout falls back to 10 seconds.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: timeout},
	}
}

// NewFromConfig constructs a client from the replica section.
func NewFromConfig(cfg *config.Config) *Client {
	return New(cfg.Replica.APIURL, cfg.Replica.APIKey, time.Duration(cfg.Replica.RequestTimeout)*time.Second)
}

// FileInfo is one entry of the recursive folder listing.
type FileInfo struct {
	Name          string          `json:"name"`
	GlobalVersion json.RawMessage `json:"globalVersion"`
	LocalVersion  json.RawMessage `json:"localVersion"`
}

// Synced reports whether the local copy matches the cluster-wide version.
// Entries without version information are never treated as synced.
func (f FileInfo) Synced() bool {
	global := compact(f.GlobalVersion)
	if len(global) == 0 || bytes.Equal(global, []byte("null")) {
		return false
	}
	return bytes.Equal(global, compact(f.LocalVersion))
}

func compact(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// Files lists every file in folderID with its version information.
func (c *Client) Files(ctx context.Context, folderID string) ([]FileInfo, error) {
	query := url.Values{"folder": {folderID}, "recursive": {"true"}}
	var files []FileInfo
	if err := c.do(ctx, http.MethodGet, "/rest/db/file", query, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// FullySynced returns the names of files whose global and local versions agree.
func (c *Client) FullySynced(ctx context.Context, folderID string) ([]string, error) {
	files, err := c.Files(ctx, folderID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if f.Synced() && f.Name != "" {
			names = append(names, f.Name)
		}
	}
	return names, nil
}

// Scan asks Syncthing to rescan folderID so newly copied files are picked up.
func (c *Client) Scan(ctx context.Context, folderID string) error {
	return c.do(ctx, http.MethodPost, "/rest/db/scan", url.Values{"folder": {folderID}}, nil)
}

// Ping checks that the API is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/rest/system/ping", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "replica", "syncthing", "replica.api_url is empty", nil)
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build syncthing request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "replica", "syncthing "+path, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return services.Wrap(services.ErrConfiguration, "replica", "syncthing "+path,
			fmt.Sprintf("api key rejected (%d)", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(services.ErrExternalTool, "replica", "syncthing "+path,
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrExternalTool, "replica", "syncthing "+path, "decode response", err)
	}
	return nil
}
