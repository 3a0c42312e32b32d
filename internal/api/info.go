package api

import (
	"net/http"
	"runtime"
	"strconv"

	"github.com/user/alphacentauri/internal/config"
	"github.com/user/alphacentauri/internal/db"
)

type userConfigResponse struct {
	Shell   config.Shell        `json:"shell"`
	Keymaps []config.KeyCommand `json:"keymaps"`
}

type systemInfoResponse struct {
	System string `json:"system"`
}

type startupResponse struct {
	Delivered int `json:"delivered"`
}

func (h *handler) getUserConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := h.state.Config.Get()
	jsonResponse(w, http.StatusOK, userConfigResponse{
		Shell:   cfg.Shell,
		Keymaps: cfg.KeymapList(),
	})
}

func (h *handler) getSystemInfo(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, systemInfoResponse{System: SystemName(runtime.GOOS)})
}

// SystemName maps a GOOS value to the platform family the UI knows about.
func SystemName(goos string) string {
	switch goos {
	case "windows":
		return "windows"
	case "darwin":
		return "macos"
	default:
		return "unix"
	}
}

// getStartupNotifications emits every queued startup notification on the
// notification channel and clears the queue.
func (h *handler) getStartupNotifications(w http.ResponseWriter, _ *http.Request) {
	n := h.state.Startup.Drain(h.state.Notifier)
	jsonResponse(w, http.StatusOK, startupResponse{Delivered: n})
}

func (h *handler) listHistory(w http.ResponseWriter, r *http.Request) {
	if h.state.History == nil {
		jsonResponse(w, http.StatusOK, []*db.SessionEvent{})
		return
	}

	var f db.ListFilter
	q := r.URL.Query()
	if raw := q.Get("handle"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid handle")
			return
		}
		f.Handle = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}

	events, err := h.state.History.List(r.Context(), f)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to read session history")
		return
	}
	jsonResponse(w, http.StatusOK, events)
}
