package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/canvas-link/internal/journal"
	"github.com/nerrad567/canvas-link/internal/registration"
)

// Account commands accepted by POST /commands.
const (
	CommandAddUser         = "addUser"
	CommandUnlinkUser      = "unlinkUser"
	CommandResetCanvasData = "resetCanvasData"
)

// healthCheckTimeout bounds the dependency checks of /health.
const healthCheckTimeout = 2 * time.Second

// handleHealth reports "ok", or "degraded" with a 503 when a dependency
// check fails. The telemetry sink is optional and never degrades health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
	}
	if s.telemetry != nil {
		resp["telemetry"] = "ok"
		if err := s.telemetry.HealthCheck(ctx); err != nil {
			resp["telemetry"] = err.Error()
		}
	}
	if s.database != nil {
		if err := s.database.HealthCheck(ctx); err != nil {
			resp["status"] = "degraded"
			resp["database"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Registered    bool   `json:"registered"`
	DeviceID      string `json:"deviceId,omitempty"`
	IoTConnected  bool   `json:"iotConnected"`
	LinkedAccount string `json:"linkedAccount,omitempty"`
	ActiveSetup   string `json:"activeSetup,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	doc := s.docs.Snapshot()
	writeJSON(w, http.StatusOK, StatusResponse{
		Registered:    doc.Registered(),
		DeviceID:      doc.DeviceID(),
		IoTConnected:  s.accounts.IoTConnected(),
		LinkedAccount: doc.User.Username,
		ActiveSetup:   doc.User.ActiveSetup.ID,
	})
}

type commandRequest struct {
	Command string `json:"command"`
}

// handleCommand runs an account command. Results also reach the UI as
// notifications.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var run func(ctx context.Context) error
	switch req.Command {
	case CommandAddUser:
		run = s.accounts.AddUser
	case CommandUnlinkUser:
		run = s.accounts.UnlinkUser
	case CommandResetCanvasData:
		run = s.accounts.ResetCanvasData
	default:
		writeBadRequest(w, "unknown command: "+req.Command)
		return
	}

	if err := run(r.Context()); err != nil {
		s.logger.Warn("account command failed", "command", req.Command, "error", err)
		if errors.Is(err, registration.ErrNotRegistered) {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"command": req.Command, "status": "ok"})
}

type paletteRequest struct {
	Connection string `json:"connection"`
	Port       string `json:"port"`
}

func (s *Server) handlePalette(w http.ResponseWriter, r *http.Request) {
	if s.palette == nil {
		writeUnavailable(w, "palette link is not configured")
		return
	}
	var req paletteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !s.palette.HandlePaletteStatus(req.Connection, req.Port) {
		writeBadRequest(w, "unknown connection status: "+req.Connection)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListJournal returns handled remote requests, most recent first.
//
// Query parameters:
//   - path: filter by command path
//   - origin_id: filter by requesting client
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "command journal is not configured")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{
		Path:     q.Get("path"),
		OriginID: q.Get("origin_id"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing command journal", "error", err)
		writeInternalError(w, "failed to list command journal")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}
