package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"tangled.org/atscan.net/perfhint/session"
)

// sendJSON sends a JSON response
func sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	jsonData, err := json.Marshal(data)
	if err != nil {
		w.WriteHeader(500)
		w.Write([]byte(`{"error":"failed to marshal JSON"}`))
		return
	}

	w.WriteHeader(statusCode)
	w.Write(jsonData)
}

// sendError maps session and argument errors onto HTTP status codes
func sendError(w http.ResponseWriter, err error) {
	status := 500
	switch {
	case errors.Is(err, session.ErrNotFound):
		status = 404
	case errors.Is(err, session.ErrInvalidArgument):
		status = 400
	case errors.Is(err, session.ErrBadState):
		status = 409
	}
	sendJSON(w, status, map[string]string{"error": err.Error()})
}

// pathInt32 parses a path value as an int32
func pathInt32(r *http.Request, name string) (int32, error) {
	raw := r.PathValue(name)
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", session.ErrInvalidArgument, name, raw)
	}
	return int32(v), nil
}

// getScheme determines the HTTP scheme
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}

// getBaseURL returns the base URL for HTTP
func getBaseURL(r *http.Request) string {
	return fmt.Sprintf("%s://%s", getScheme(r), r.Host)
}

// getWSURL returns the base URL for WebSocket
func getWSURL(r *http.Request) string {
	scheme := "ws"
	if getScheme(r) == "https" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

// formatNumber formats numbers with thousand separators
func formatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	var result []byte
	for i, c := range s {
		if i > 0 && c != '-' && s[i-1] != '-' && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}
