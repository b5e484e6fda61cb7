// Package controlclient is the Agent's HTTP client for the Controller API
// (spec.md §6), used by the Agent's registration, heartbeat, and peer-sync
// steps (spec.md §4.2).
package controlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnknownNode mirrors the Controller's 404 response to Heartbeat, so the
// Agent can detect that it must re-register (spec.md §4.2).
var ErrUnknownNode = errors.New("unknown node")

// ErrExhaustedSubnets mirrors the Controller's 503 response to Register.
var ErrExhaustedSubnets = errors.New("exhausted subnets")

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type Peer struct {
	NodeID        string `json:"node_id"`
	Hostname      string `json:"hostname"`
	HostIP        string `json:"host_ip"`
	Subnet        string `json:"subnet"`
	Status        string `json:"status"`
	RegisteredAt  int64  `json:"registered_at"`
	LastHeartbeat int64  `json:"last_heartbeat"`
}

type registerRequest struct {
	Hostname string `json:"hostname"`
	HostIP   string `json:"host_ip"`
	CPUCores int    `json:"cpu_cores,omitempty"`
	RAMMB    int    `json:"ram_mb,omitempty"`
}

type registerResponse struct {
	NodeID string `json:"node_id"`
	Subnet string `json:"subnet"`
}

type listNodesResponse struct {
	Nodes []Peer `json:"nodes"`
}

// Register calls POST /api/nodes/register (spec.md §6).
func (c *Client) Register(ctx context.Context, hostname, hostIP string, cpuCores, ramMB int) (nodeID, subnet string, err error) {
	body, err := json.Marshal(registerRequest{Hostname: hostname, HostIP: hostIP, CPUCores: cpuCores, RAMMB: ramMB})
	if err != nil {
		return "", "", fmt.Errorf("marshal register request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/nodes/register", body)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return "", "", ErrExhaustedSubnets
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("register: %s", statusErr(resp))
	}

	var out registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("decode register response: %w", err)
	}
	return out.NodeID, out.Subnet, nil
}

// Heartbeat calls POST /api/nodes/{node_id}/heartbeat (spec.md §6).
func (c *Client) Heartbeat(ctx context.Context, nodeID string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/nodes/"+nodeID+"/heartbeat", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUnknownNode
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat: %s", statusErr(resp))
	}
	return nil
}

// ListNodes calls GET /api/nodes (spec.md §6).
func (c *Client) ListNodes(ctx context.Context) ([]Peer, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/nodes", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list nodes: %s", statusErr(resp))
	}
	var out listNodesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode list nodes response: %w", err)
	}
	return out.Nodes, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("control plane unreachable: %w", err)
	}
	return resp, nil
}

func statusErr(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Sprintf("%s: %s", resp.Status, body.Error)
	}
	return resp.Status
}
