package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// WriteMessage writes a SSE message to the response writer
func WriteMessage(w http.ResponseWriter, flusher http.Flusher, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Write SSE format
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}

// WriteEvent writes a named SSE event to the response writer
func WriteEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
	flusher.Flush()

	return nil
}
