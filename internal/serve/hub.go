package serve

import (
	"bufio"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sitewright/sitewright/internal/logfields"
	"github.com/sitewright/sitewright/internal/metrics"
)

const heartbeatInterval = 30 * time.Second

// ReloadHub fans successful publishes out to connected browsers over SSE.
// Each event carries the build ID of the newly live tree; the client script
// reloads when the ID changes.
type ReloadHub struct {
	mu          sync.RWMutex
	nextID      int
	clients     map[int]*reloadClient
	recorder    metrics.Recorder
	closed      bool
	lastBuildID string
}

type reloadClient struct {
	id   int
	ch   chan string
	done chan struct{}
}

// NewReloadHub creates a hub. recorder may be nil.
func NewReloadHub(recorder metrics.Recorder) *ReloadHub {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &ReloadHub{clients: map[int]*reloadClient{}, recorder: recorder}
}

// ServeHTTP implements the SSE endpoint.
func (h *ReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "reload hub shutting down", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	client := &reloadClient{ch: make(chan string, 8), done: make(chan struct{})}
	h.mu.Lock()
	client.id = h.nextID
	h.nextID++
	h.clients[client.id] = client
	current := h.lastBuildID
	h.mu.Unlock()
	h.recorder.AddReloadClients(1)

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(": connected\n\n"); err != nil {
		h.removeClient(client.id)
		return
	}
	if current != "" {
		// Baseline event so the client can tell future publishes apart.
		if _, err := bw.WriteString("data: {\"build\":\"" + current + "\"}\n\n"); err != nil {
			h.removeClient(client.id)
			return
		}
	}
	if err := bw.Flush(); err == nil {
		flusher.Flush()
	}

	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.removeClient(client.id)
			return
		case <-client.done:
			return
		case <-hb.C:
			if _, err := bw.WriteString(": ping\n\n"); err != nil {
				h.removeClient(client.id)
				return
			}
			_ = bw.Flush()
			flusher.Flush()
		case buildID := <-client.ch:
			if _, err := bw.WriteString("data: {\"build\":\"" + buildID + "\"}\n\n"); err != nil {
				h.removeClient(client.id)
				return
			}
			_ = bw.Flush()
			flusher.Flush()
		}
	}
}

func (h *ReloadHub) removeClient(id int) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	if ok {
		close(c.done)
		h.recorder.AddReloadClients(-1)
	}
}

// Broadcast notifies all clients of a newly published build. Duplicate IDs
// are suppressed; clients too slow to drain their channel are dropped.
func (h *ReloadHub) Broadcast(buildID string) {
	h.mu.Lock()
	if h.closed || buildID == "" || buildID == h.lastBuildID {
		h.mu.Unlock()
		return
	}
	h.lastBuildID = buildID
	snapshot := make([]*reloadClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- buildID:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	slog.Debug("Reload broadcast",
		logfields.BuildID(buildID),
		slog.Int("clients", len(snapshot)),
		slog.Int("dropped", dropped))
}

// ClientCount reports connected clients.
func (h *ReloadHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects all clients and rejects new connections.
func (h *ReloadHub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*reloadClient{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
		h.recorder.AddReloadClients(-1)
	}
}

// reloadScript is served at /__reload.js and injected into HTML pages when
// live reload is enabled.
const reloadScript = `(() => {
  if (window.__SITEWRIGHT_RELOAD__) return;
  window.__SITEWRIGHT_RELOAD__ = true;
  function connect() {
    const es = new EventSource('/__reload');
    let baseline = null;
    es.onmessage = (e) => {
      try {
        const p = JSON.parse(e.data);
        if (!p.build) return;
        if (baseline === null) { baseline = p.build; return; }
        if (p.build !== baseline) { location.reload(); }
      } catch (_) {}
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();
`
