package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/user/alphacentauri/internal/pty"
)

type createSessionRequest struct {
	Args               *[]string         `json:"args"`
	Cols               *uint16           `json:"cols"`
	Rows               *uint16           `json:"rows"`
	Cwd                *string           `json:"cwd"`
	Env                map[string]string `json:"env"`
	ReferringSessionID *int              `json:"referringSessionId"`
}

func (req createSessionRequest) options() pty.CreateOptions {
	var opts pty.CreateOptions
	if req.Args != nil {
		opts.Args = *req.Args
		if opts.Args == nil {
			opts.Args = []string{}
		}
	}
	if req.Cols != nil {
		opts.Cols = *req.Cols
	}
	if req.Rows != nil {
		opts.Rows = *req.Rows
	}
	if req.Cwd != nil {
		opts.Cwd = *req.Cwd
	}
	opts.Env = req.Env
	if req.ReferringSessionID != nil {
		opts.ReferringHandle = pty.Handle(*req.ReferringSessionID)
	}
	return opts
}

type handleResponse struct {
	Handle pty.Handle `json:"handle"`
}

type inputRequest struct {
	Data string `json:"data"`
}

type outputResponse struct {
	Data string `json:"data"`
}

type resizeRequest struct {
	Cols *uint16 `json:"cols"`
	Rows *uint16 `json:"rows"`
}

type exitResponse struct {
	ExitCode int `json:"exitCode"`
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	handle, err := h.state.Sessions.CreateSession(r.Context(), req.options())
	if err != nil {
		sessionError(w, err)
		return
	}
	h.tableChanged()
	jsonResponse(w, http.StatusCreated, handleResponse{Handle: handle})
}

func (h *handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, h.state.Sessions.ListSessions())
}

func (h *handler) writeToSession(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathHandle(w, r)
	if !ok {
		return
	}
	var req inputRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.state.Sessions.WriteToSession(handle, []byte(req.Data)); err != nil {
		sessionError(w, err)
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

func (h *handler) readFromSession(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathHandle(w, r)
	if !ok {
		return
	}
	data, err := h.state.Sessions.ReadFromSession(handle)
	if err != nil {
		sessionError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, outputResponse{Data: string(data)})
}

func (h *handler) resize(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathHandle(w, r)
	if !ok {
		return
	}
	var req resizeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Cols == nil || req.Rows == nil {
		jsonError(w, http.StatusBadRequest, "cols and rows are required")
		return
	}
	if err := h.state.Sessions.Resize(handle, *req.Cols, *req.Rows); err != nil {
		sessionError(w, err)
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

func (h *handler) endSession(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathHandle(w, r)
	if !ok {
		return
	}
	if err := h.state.Sessions.EndSession(handle); err != nil {
		sessionError(w, err)
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

func (h *handler) releaseSession(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathHandle(w, r)
	if !ok {
		return
	}
	if err := h.state.Sessions.ReleaseSession(handle); err != nil {
		sessionError(w, err)
		return
	}
	if h.state.Relay != nil {
		h.state.Relay.Forget(handle)
	}
	h.tableChanged()
	jsonResponse(w, http.StatusNoContent, nil)
}

func (h *handler) waitForExit(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathHandle(w, r)
	if !ok {
		return
	}
	code, err := h.state.Sessions.WaitForExit(r.Context(), handle)
	if err != nil {
		sessionError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, exitResponse{ExitCode: code})
}

func (h *handler) checkExitStatus(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathHandle(w, r)
	if !ok {
		return
	}
	status, err := h.state.Sessions.CheckExitStatus(handle)
	if err != nil {
		sessionError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, status)
}

func pathHandle(w http.ResponseWriter, r *http.Request) (pty.Handle, bool) {
	raw := r.PathValue("handle")
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		jsonError(w, http.StatusBadRequest, "invalid session handle "+strconv.Quote(raw))
		return 0, false
	}
	return pty.Handle(n), true
}
