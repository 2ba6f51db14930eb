package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	xreferrors "github.com/standardbeagle/xref/internal/errors"
	"github.com/standardbeagle/xref/internal/metrics"
	"github.com/standardbeagle/xref/internal/search"
	"github.com/standardbeagle/xref/internal/types"
)

// Client connects to a remote IndexServer
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client for the default socket of a project root
func NewClient(root string) *Client {
	return NewClientWithSocket(GetSocketPath(root))
}

// NewClientWithSocket creates a client that talks to a unix socket
func NewClientWithSocket(socketPath string) *Client {
	// Create HTTP client that uses Unix socket
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 30 * time.Second,
	}
	return &Client{httpClient: httpClient, baseURL: "http://unix"}
}

// NewClientWithAddress creates a client for a TCP listener
func NewClientWithAddress(addr string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "http://" + addr,
	}
}

// IsServerRunning checks if the server is accessible
func (c *Client) IsServerRunning() bool {
	_, err := c.Ping()
	return err == nil
}

// serverError turns a non-200 reply into an error. The /search status codes
// map back onto the query and availability errors.
func serverError(resp *http.Response, query string) error {
	body, _ := io.ReadAll(resp.Body)
	var eb errorBody
	msg := string(bytes.TrimSpace(body))
	if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
		msg = eb.Error
	}
	switch resp.StatusCode {
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", xreferrors.ErrIndexUnavailable, msg)
	case http.StatusBadRequest:
		return xreferrors.NewQueryError(query, errors.New(msg))
	}
	return fmt.Errorf("server error (%d): %s", resp.StatusCode, msg)
}

func (c *Client) do(method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return serverError(resp, "")
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Ping sends a health check to the server
func (c *Client) Ping() (*PingResponse, error) {
	var ping PingResponse
	if err := c.do(http.MethodGet, "/ping", nil, &ping); err != nil {
		return nil, err
	}
	return &ping, nil
}

// GetStatus retrieves the current index status
func (c *Client) GetStatus() (*IndexStatus, error) {
	var status IndexStatus
	if err := c.do(http.MethodGet, "/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Search evaluates spec on the server. Errors wrap ErrIndexUnavailable or
// are *QueryError the way a local search would fail.
func (c *Client) Search(spec types.QuerySpec) (*search.Response, error) {
	encoded := spec.Encode()
	resp, err := c.httpClient.Get(c.baseURL + "/search?" + encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp, encoded)
	}
	var sr SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	if sr.Response == nil {
		return nil, fmt.Errorf("empty search response")
	}
	return sr.Response, nil
}

// Reindex asks the server to rebuild. Without paths the whole tree is indexed.
func (c *Client) Reindex(paths []string, wait bool) (*ReindexResponse, error) {
	var out ReindexResponse
	if err := c.do(http.MethodPost, "/reindex", ReindexRequest{Paths: paths, Wait: wait}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStats retrieves index, cache and process statistics
func (c *Client) GetStats() (*StatsResponse, error) {
	var stats StatsResponse
	if err := c.do(http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetCodebaseStats returns metrics of the published version
func (c *Client) GetCodebaseStats() (*metrics.CodebaseStats, error) {
	var stats metrics.CodebaseStats
	if err := c.do(http.MethodGet, "/codebase", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// History lists the n most recent builds
func (c *Client) History(n int) ([]HistoryEntry, error) {
	var out HistoryResponse
	if err := c.do(http.MethodGet, "/history?n="+strconv.Itoa(n), nil, &out); err != nil {
		return nil, err
	}
	return out.Builds, nil
}

// Shutdown requests the server to stop
func (c *Client) Shutdown(force bool) error {
	var out ShutdownResponse
	if err := c.do(http.MethodPost, "/shutdown", ShutdownRequest{Force: force}, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("shutdown failed: %s", out.Message)
	}
	return nil
}

// Close releases idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
