package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"spool/internal/bus"
	"spool/internal/logging"
)

// eventBuffer bounds how far a slow client may fall behind before
// events are dropped for it.
const eventBuffer = 64

// handleEvents streams bus events for one channel as server-sent
// events. Each frame carries the correlation id as the SSE id, the
// event name, and the JSON payload.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	channel, err := eventChannel(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wantCorrelation := strings.TrimSpace(r.URL.Query().Get("correlationId"))

	events := make(chan bus.Event, eventBuffer)
	unsubscribe := s.bus.Subscribe(channel, func(ev bus.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if wantCorrelation != "" && ev.CorrelationID != wantCorrelation {
				continue
			}
			data, err := json.Marshal(ev.Payload)
			if err != nil {
				s.logger.Warn("encode event payload",
					logging.String(logging.FieldEventType, ev.Name),
					logging.Error(err))
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.CorrelationID, ev.Name, data)
			flusher.Flush()
		}
	}
}

// eventChannel resolves the subscription channel from the request.
// Accepted forms: "queue" (default), "auth", or "job/<id>".
func eventChannel(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("channel"))
	switch {
	case raw == "" || raw == bus.ChannelQueue:
		return bus.ChannelQueue, nil
	case raw == bus.ChannelAuth:
		return bus.ChannelAuth, nil
	case strings.HasPrefix(raw, "job/"):
		id, err := strconv.ParseInt(strings.TrimPrefix(raw, "job/"), 10, 64)
		if err != nil || id <= 0 {
			return "", fmt.Errorf("invalid job channel %q", raw)
		}
		return bus.JobChannel(id), nil
	default:
		return "", fmt.Errorf("unknown channel %q", raw)
	}
}
