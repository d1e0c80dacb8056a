package server

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, errorCode, description string) {
	body := map[string]string{"error": errorCode}
	if description != "" {
		body["error_description"] = description
	}
	writeJSON(w, status, body)
}
