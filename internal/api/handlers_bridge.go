package api

import (
	"net/http"
	"strings"
	"time"

	"peerbridge/internal/bridge"
	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
)

// handleHealth GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.resp.Success(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Bridges: len(s.shell.Supervisor().List()),
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleListBridges GET /bridges
func (s *Server) handleListBridges(w http.ResponseWriter, r *http.Request) {
	bridges := s.shell.Supervisor().List()
	s.resp.Success(w, http.StatusOK, ListResponse{Bridges: bridges, Total: len(bridges)})
}

// handleBridgeStatus GET /bridges/status?url=
func (s *Server) handleBridgeStatus(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		s.resp.Error(w, http.StatusBadRequest, "url is required")
		return
	}
	s.resp.Success(w, http.StatusOK, StatusResponse{URL: url, Running: s.shell.Status(url)})
}

// handleStopBridge DELETE /bridges?url=
func (s *Server) handleStopBridge(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		s.resp.Error(w, http.StatusBadRequest, "url is required")
		return
	}
	if s.shell.Supervisor().Stop(url) != bridge.OutcomeStopped {
		s.resp.Error(w, http.StatusNotFound, "bridge not running")
		return
	}
	s.resp.Success(w, http.StatusOK, StopResponse{Result: bridge.ResultStopped})
}

// handleStartBridge POST /bridges
//
// 非 strict 时与界面命令一致：已存在的桥接被停止并返回 "Stopped"。
func (s *Server) handleStartBridge(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := parseJSONBody(r, &req); err != nil {
		s.resp.Error(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	kind, err := bridge.ParseKind(req.Kind)
	if err != nil {
		s.resp.Error(w, http.StatusBadRequest, bridge.Reason(err))
		return
	}

	if req.Strict {
		s.startStrict(w, kind, req)
		return
	}

	var result string
	switch kind {
	case bridge.KindHTTP:
		result = s.shell.Browse(req.Port, req.URL, req.OpenBrowser)
	case bridge.KindTCP:
		result = s.shell.TCPConnect(req.Port, req.URL)
	case bridge.KindUDP:
		result = s.shell.UDPConnect(req.Port, req.URL)
	case bridge.KindTCPUDP:
		result = s.shell.TCPUDPConnect(req.Port, req.URL)
	}

	switch {
	case result == bridge.ResultOk:
		info, _ := s.shell.Supervisor().Info(req.URL)
		s.resp.Success(w, http.StatusCreated, StartResponse{Result: result, Bridge: &info})
	case result == bridge.ResultStopped:
		s.resp.Success(w, http.StatusOK, StartResponse{Result: result})
	case strings.HasPrefix(result, "Failed to parse URL"):
		s.resp.Error(w, http.StatusBadRequest, result)
	default:
		s.resp.Error(w, http.StatusConflict, result)
	}
}

func (s *Server) startStrict(w http.ResponseWriter, kind bridge.Kind, req StartRequest) {
	info, err := s.shell.Launch(kind, req.Port, req.URL, req.OpenBrowser)
	if err != nil {
		corelog.Warnf("ControlAPI: start %s %s: %v", kind, req.URL, err)
		status := http.StatusInternalServerError
		message := bridge.Reason(err)
		switch coreerrors.GetCode(err) {
		case coreerrors.CodeInvalidURL, coreerrors.CodeInvalidPeerID:
			status = http.StatusBadRequest
			message = "Failed to parse URL: " + message
		case coreerrors.CodeAlreadyExists, coreerrors.CodeBindFailed:
			status = http.StatusConflict
		case coreerrors.CodeCancelled:
			status = http.StatusServiceUnavailable
		}
		s.resp.Error(w, status, message)
		return
	}
	s.resp.Success(w, http.StatusCreated, StartResponse{Result: bridge.ResultOk, Bridge: &info})
}
