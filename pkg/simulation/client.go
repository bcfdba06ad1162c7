// Package simulation talks to the routing backend that recomputes edge usage
// after hypothetical edge closures.
package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ritzau/bluecity/pkg/logging"
	"github.com/ritzau/bluecity/pkg/model"
)

// DefaultTimeout bounds one recalculation round trip
const DefaultTimeout = 60 * time.Second

// DefaultWeight is the edge attribute shortest paths are computed on
const DefaultWeight = "travel_time"

const (
	recalculatePath = "/api/v1/routes/recalculate"
	graphInfoPath   = "/api/v1/routes/graph-info"
)

// EdgeModification asks the backend to change one edge
type EdgeModification struct {
	U      int64  `json:"u"`
	V      int64  `json:"v"`
	Action string `json:"action"`
}

// RecalculateRequest is the body of a recalculation call
type RecalculateRequest struct {
	Pairs             []model.NodePair   `json:"pairs,omitempty"`
	EdgeModifications []EdgeModification `json:"edge_modifications"`
	Weight            string             `json:"weight"`
}

// RecalculateResponse carries both usage batches and the impact summary
type RecalculateResponse struct {
	AppliedModifications []EdgeModification      `json:"applied_modifications"`
	OriginalEdgeUsage    []model.EdgeUsageStat   `json:"original_edge_usage"`
	NewEdgeUsage         []model.EdgeUsageStat   `json:"new_edge_usage"`
	ImpactStatistics     *model.ImpactStatistics `json:"impact_statistics"`
}

// GraphInfo describes the road graph loaded by the backend
type GraphInfo struct {
	NodeCount   int     `json:"node_count"`
	EdgeCount   int     `json:"edge_count"`
	SampleNodes []int64 `json:"sample_nodes"`
}

// Client calls the routing backend
type Client struct {
	baseURL    string
	weight     string
	httpClient *http.Client
}

// NewClient creates a client for the backend at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		weight:     DefaultWeight,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the backend origin
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Recalculate asks for routes between pairs with the removed edges closed
func (c *Client) Recalculate(ctx context.Context, pairs []model.NodePair, removed []model.RemovedEdge) (*RecalculateResponse, error) {
	body := RecalculateRequest{
		Pairs:             pairs,
		EdgeModifications: make([]EdgeModification, 0, len(removed)),
		Weight:            c.weight,
	}
	for _, e := range removed {
		body.EdgeModifications = append(body.EdgeModifications, EdgeModification{U: e.U, V: e.V, Action: "remove"})
	}

	var resp RecalculateResponse
	start := time.Now()
	if err := c.do(ctx, http.MethodPost, recalculatePath, body, &resp); err != nil {
		return nil, fmt.Errorf("recalculate routes: %w", err)
	}
	logging.Debug("routes recalculated",
		"pairs", len(pairs),
		"removed", len(removed),
		"edges", len(resp.NewEdgeUsage),
		"durationMs", time.Since(start).Milliseconds())
	return &resp, nil
}

// GraphInfo fetches graph statistics and a sample of node ids
func (c *Client) GraphInfo(ctx context.Context) (*GraphInfo, error) {
	var info GraphInfo
	if err := c.do(ctx, http.MethodGet, graphInfoPath, nil, &info); err != nil {
		return nil, fmt.Errorf("graph info: %w", err)
	}
	return &info, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
