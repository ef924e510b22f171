package api

import (
	"encoding/json"
	"net/http"

	corelog "peerbridge/internal/core/log"
)

// ResponseData 统一的 API 响应格式
type ResponseData struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ResponseHelper 响应辅助工具
type ResponseHelper struct{}

// NewResponseHelper 创建响应辅助工具
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 成功响应，data 放在 data 字段
func (h *ResponseHelper) Success(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, ResponseData{Success: true, Data: data})
}

// Error 失败响应
func (h *ResponseHelper) Error(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ResponseData{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, statusCode int, body ResponseData) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		corelog.Debugf("ControlAPI: write response: %v", err)
	}
}

// parseJSONBody 解析 JSON 请求体
func parseJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
