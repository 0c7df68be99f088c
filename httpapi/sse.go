package httpapi

import (
	"encoding/json"
	"fmt"
	"io"

	"ragbackend/answer"
)

// writeSSEEvent renders one answer.StreamEvent as a named SSE frame
// (`event: chunk`/`event: done`/`event: error`, spec §6.1), matching
// the wire shape the teacher's now-removed SSE writer used for its own
// streaming chat endpoint.
func writeSSEEvent(w io.Writer, ev answer.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Event, data)
	return err
}
