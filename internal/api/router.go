package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// NewRouter mounts the command surface under /api.
func NewRouter(state *State, token string) http.Handler {
	h := newHandler(state)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", h.createSession)
	mux.HandleFunc("GET /api/sessions", h.listSessions)
	mux.HandleFunc("POST /api/sessions/{handle}/input", h.writeToSession)
	mux.HandleFunc("GET /api/sessions/{handle}/output", h.readFromSession)
	mux.HandleFunc("POST /api/sessions/{handle}/resize", h.resize)
	mux.HandleFunc("DELETE /api/sessions/{handle}", h.endSession)
	mux.HandleFunc("POST /api/sessions/{handle}/release", h.releaseSession)
	mux.HandleFunc("GET /api/sessions/{handle}/exit", h.waitForExit)
	mux.HandleFunc("GET /api/sessions/{handle}/status", h.checkExitStatus)

	mux.HandleFunc("GET /api/config", h.getUserConfig)
	mux.HandleFunc("GET /api/system", h.getSystemInfo)
	mux.HandleFunc("POST /api/notifications/startup", h.getStartupNotifications)
	mux.HandleFunc("GET /api/history", h.listHistory)

	return authMiddleware(token)(jsonMiddleware(corsMiddleware(mux)))
}

func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") &&
				strings.TrimSpace(authHeader[7:]) == token {
				next.ServeHTTP(w, r)
				return
			}
			if r.URL.Query().Get("token") == token {
				next.ServeHTTP(w, r)
				return
			}

			jsonError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// errEmptyBody is returned by decodeJSON when the request has no body.
var errEmptyBody = errors.New("empty request body")

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return io.ErrUnexpectedEOF
	}
	return nil
}
