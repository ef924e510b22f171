package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	coreerrors "peerbridge/internal/core/errors"
)

// Client 控制 API 客户端，供 CLI 的 status / stop / list 使用
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient 创建客户端；addr 为 host:port 或完整 URL
func NewClient(addr, token string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    strings.TrimSuffix(base, "/") + APIPrefix,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Health GET /health
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List GET /bridges
func (c *Client) List(ctx context.Context) (*ListResponse, error) {
	var resp ListResponse
	if err := c.do(ctx, http.MethodGet, "/bridges", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status GET /bridges/status
func (c *Client) Status(ctx context.Context, bridgeURL string) (bool, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/bridges/status?url="+url.QueryEscape(bridgeURL), nil, &resp); err != nil {
		return false, err
	}
	return resp.Running, nil
}

// Start POST /bridges
func (c *Client) Start(ctx context.Context, req *StartRequest) (*StartResponse, error) {
	var resp StartResponse
	if err := c.do(ctx, http.MethodPost, "/bridges", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop DELETE /bridges
func (c *Client) Stop(ctx context.Context, bridgeURL string) (string, error) {
	var resp StopResponse
	if err := c.do(ctx, http.MethodDelete, "/bridges?url="+url.QueryEscape(bridgeURL), nil, &resp); err != nil {
		return "", err
	}
	return resp.Result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return coreerrors.Wrap(err, coreerrors.CodeInternal, "failed to marshal request")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeInternal, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeNetworkError, "request failed")
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return coreerrors.Wrapf(err, coreerrors.CodeProtocolError, "invalid response (%d)", resp.StatusCode)
	}
	if !envelope.Success {
		code := coreerrors.CodeInternal
		switch resp.StatusCode {
		case http.StatusBadRequest:
			code = coreerrors.CodeInvalidParam
		case http.StatusUnauthorized:
			code = coreerrors.CodeUnauthorized
		case http.StatusNotFound:
			code = coreerrors.CodeNotFound
		case http.StatusConflict:
			code = coreerrors.CodeAlreadyExists
		}
		return coreerrors.New(code, envelope.Error)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return coreerrors.Wrap(err, coreerrors.CodeProtocolError, "failed to parse response")
		}
	}
	return nil
}
