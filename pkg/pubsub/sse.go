package pubsub

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteSSE writes an event to an SSE response writer
// Format: "event: {topic}\nid: {version}\ndata: {json}\n\n"
func WriteSSE(w io.Writer, event Event) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", event.Topic, event.Version, jsonData)
	return err
}
