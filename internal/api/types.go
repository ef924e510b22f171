package api

import (
	"peerbridge/internal/bridge"
)

// APIPrefix 路由前缀
const APIPrefix = "/peerbridge/v1"

// StartRequest POST /bridges 请求体
type StartRequest struct {
	Kind        string `json:"kind"`
	URL         string `json:"url"`
	Port        uint16 `json:"port"`
	OpenBrowser bool   `json:"open_browser"`
	// Strict 为 true 时已存在的桥接返回 409，而不是被停止
	Strict bool `json:"strict"`
}

// StartResponse 启停结果；Result 为 "Ok" 或 "Stopped"
type StartResponse struct {
	Result string             `json:"result"`
	Bridge *bridge.BridgeInfo `json:"bridge,omitempty"`
}

// StopResponse DELETE /bridges 响应
type StopResponse struct {
	Result string `json:"result"`
}

// StatusResponse GET /bridges/status 响应
type StatusResponse struct {
	URL     string `json:"url"`
	Running bool   `json:"running"`
}

// ListResponse GET /bridges 响应
type ListResponse struct {
	Bridges []bridge.BridgeInfo `json:"bridges"`
	Total   int                 `json:"total"`
}

// HealthResponse GET /health 响应
type HealthResponse struct {
	Status  string `json:"status"`
	Bridges int    `json:"bridges"`
	Uptime  string `json:"uptime"`
}
