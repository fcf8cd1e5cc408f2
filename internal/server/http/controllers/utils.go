package controllers

import (
	"encoding/json"
	"net/http"
)

const (
	contentJSON = "application/json"
	contentText = "text/plain; charset=utf-8"
)

func respond(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeJSON falls back to a 500 when v cannot be encoded.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		respond(w, http.StatusInternalServerError, contentJSON, []byte(`{"error":"encoding"}`+"\n"))
		return
	}
	respond(w, status, contentJSON, append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}

// writeText answers with body and a trailing newline, the format health
// probes and the websocket handshake rejection use.
func writeText(w http.ResponseWriter, status int, body string) {
	respond(w, status, contentText, []byte(body+"\n"))
}
