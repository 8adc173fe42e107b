package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// EventConnected is the first event of every stream; its data carries the
// subscriber id.
const (
	EventConnected = "connected"
	EventHeartbeat = "heartbeat"
)

// Stream serves a subscriber's events as Server-Sent Events.
type Stream struct {
	hub       *Hub
	heartbeat time.Duration
}

// NewStream creates a stream server. A non-positive heartbeat defaults to 30s.
func NewStream(hub *Hub, heartbeat time.Duration) *Stream {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Stream{hub: hub, heartbeat: heartbeat}
}

// Serve streams owner's change events until the client goes away or the hub
// shuts down. Each event is written as
//
//	event: INSERT
//	data: {"type":"INSERT","owner":"7","new":{...},...}
func (s *Stream) Serve(w http.ResponseWriter, r *http.Request, owner string) {
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		log.Printf("[REALTIME] Streaming not supported: %v", err)
		return
	}

	sub, err := s.hub.Subscribe(owner)
	if err != nil {
		log.Printf("[REALTIME] Failed to subscribe: %v", err)
		return
	}
	defer s.hub.Unsubscribe(sub.ID)

	if err := writeEvent(w, rc, EventConnected, map[string]string{"subscriber_id": sub.ID}); err != nil {
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, rc, string(ev.Type), ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := writeEvent(w, rc, EventHeartbeat, map[string]int64{"ts": time.Now().Unix()}); err != nil {
				return
			}
		case <-sub.Done():
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	return rc.Flush()
}
