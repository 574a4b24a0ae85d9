package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/go_cart/pkg/logger"
	"go.uber.org/zap"
)

const keepAliveInterval = 15 * time.Second

// streamEvents writes initial and then every value from updates as server-sent
// events until the client goes away or updates is closed.
func streamEvents[T any](w http.ResponseWriter, r *http.Request, event string, initial T, updates <-chan T) {
	log := logger.FromContext(r.Context(), zap.L())

	rc := http.NewResponseController(w)
	// the server write timeout would cut the stream
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Debug("clear write deadline", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(v T) bool {
		data, err := json.Marshal(v)
		if err != nil {
			log.Warn("marshal event", zap.String("event", event), zap.Error(err))
			return false
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	if !send(initial) {
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	for {
		select {
		case v, ok := <-updates:
			if !ok || !send(v) {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil || rc.Flush() != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
