package ui

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

//go:embed static
var staticFiles embed.FS

const (
	widgetLabel = "label"
	widgetImage = "image"

	opSnapshot = "snapshot"
	opCreate   = "create"
	opUpdate   = "update"
	opPadding  = "padding"

	defaultQueueSize = 16
	writeWait        = 10 * time.Second
	pingPeriod       = 30 * time.Second
)

// Widget is the state of one widget as sent to browsers.
type Widget struct {
	ID     int    `json:"id"`
	Kind   string `json:"kind"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"w"`
	Height int    `json:"h"`
	Text   string `json:"text,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Padding is the screen padding in pixels.
type Padding struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Snapshot is the complete screen state.
type Snapshot struct {
	Padding Padding  `json:"padding"`
	Widgets []Widget `json:"widgets"`
}

type message struct {
	Op       string    `json:"op"`
	Widget   *Widget   `json:"widget,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Padding  *Padding  `json:"padding,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// WebHost keeps widget state in memory and mirrors every mutation to the
// browsers connected over WebSocket. Mutations never wait for a browser:
// a client whose send queue is full is disconnected.
type WebHost struct {
	log       *slog.Logger
	connected prometheus.Gauge
	upgrader  websocket.Upgrader
	queueSize int

	mu      sync.Mutex
	nextID  int
	widgets map[int]*Widget
	order   []int
	padding Padding
	clients map[*client]struct{}
	closed  bool
}

// NewWebHost creates an empty WebHost. connected tracks the number of browsers, it may be nil.
func NewWebHost(log *slog.Logger, connected prometheus.Gauge) *WebHost {
	return &WebHost{
		log:       log,
		connected: connected,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		queueSize: defaultQueueSize,
		widgets:   make(map[int]*Widget),
		clients:   make(map[*client]struct{}),
	}
}

// CreateLabel adds a text label.
func (h *WebHost) CreateLabel(x, y, w, height int, text string) LabelHandle {
	return LabelHandle(h.create(Widget{Kind: widgetLabel, X: x, Y: y, Width: w, Height: height, Text: text}))
}

// SetLabelText replaces the text of a label.
func (h *WebHost) SetLabelText(handle LabelHandle, text string) error {
	return h.update(int(handle), widgetLabel, func(w *Widget) { w.Text = text })
}

// CreateImage adds an image widget showing url.
func (h *WebHost) CreateImage(x, y, w, height int, url string) ImageHandle {
	return ImageHandle(h.create(Widget{Kind: widgetImage, X: x, Y: y, Width: w, Height: height, URL: url}))
}

// SetImageURL replaces the source of an image widget.
func (h *WebHost) SetImageURL(handle ImageHandle, url string) error {
	return h.update(int(handle), widgetImage, func(w *Widget) { w.URL = url })
}

// SetPadding sets the screen padding.
func (h *WebHost) SetPadding(top, right, bottom, left int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.padding = Padding{Top: top, Right: right, Bottom: bottom, Left: left}
	padding := h.padding
	h.broadcast(message{Op: opPadding, Padding: &padding})
}

// Snapshot returns a copy of the current screen state.
func (h *WebHost) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.snapshot()
}

// Handler serves the screen page at "/", the state at "/api/screen" and the
// live updates at "/ws".
func (h *WebHost) Handler() http.Handler {
	mux := http.NewServeMux()

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("embedded static directory is missing")
	}
	mux.Handle("/", http.FileServer(http.FS(static)))
	mux.HandleFunc("/api/screen", h.serveSnapshot)
	mux.HandleFunc("/ws", h.serveWS)

	return mux
}

// Close disconnects every browser and refuses new connections.
func (h *WebHost) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *WebHost) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.closed
}

func (h *WebHost) create(w Widget) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	w.ID = h.nextID
	h.widgets[w.ID] = &w
	h.order = append(h.order, w.ID)

	created := w
	h.broadcast(message{Op: opCreate, Widget: &created})

	return w.ID
}

func (h *WebHost) update(id int, kind string, apply func(*Widget)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	w, ok := h.widgets[id]
	if !ok || w.Kind != kind {
		return ErrUnknownWidget
	}

	apply(w)
	updated := *w
	h.broadcast(message{Op: opUpdate, Widget: &updated})

	return nil
}

func (h *WebHost) snapshot() Snapshot {
	snap := Snapshot{Padding: h.padding, Widgets: make([]Widget, 0, len(h.order))}
	for _, id := range h.order {
		snap.Widgets = append(snap.Widgets, *h.widgets[id])
	}

	return snap
}

// broadcast must be called with h.mu held.
func (h *WebHost) broadcast(msg message) {
	if len(h.clients) == 0 {
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("Failed to encode screen update", "op", msg.Op, "error", err)
		return
	}

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.log.Warn("UI client is too slow, disconnecting", "client", c.id)
			h.dropLocked(c)
		}
	}
}

// dropLocked must be called with h.mu held.
func (h *WebHost) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	if h.connected != nil {
		h.connected.Dec()
	}
}

func (h *WebHost) serveSnapshot(writer http.ResponseWriter, _ *http.Request) {
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(h.Snapshot()); err != nil {
		h.log.Error("Failed to write screen snapshot", "error", err)
	}
}

func (h *WebHost) serveWS(writer http.ResponseWriter, req *http.Request) {
	if h.isClosed() {
		http.Error(writer, "screen is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		h.log.Error("Websocket upgrade failed", "error", err)
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, h.queueSize)}
	ctx := req.Context()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "screen is shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	snap := h.snapshot()
	payload, err := json.Marshal(message{Op: opSnapshot, Snapshot: &snap})
	if err != nil {
		h.mu.Unlock()
		h.log.ErrorContext(ctx, "Failed to encode screen snapshot", "error", err)
		_ = conn.Close()
		return
	}
	c.send <- payload
	h.clients[c] = struct{}{}
	if h.connected != nil {
		h.connected.Inc()
	}
	h.mu.Unlock()

	h.log.InfoContext(ctx, "UI client connected", "client", c.id, "remote", req.RemoteAddr)

	go h.writePump(c)
	h.readPump(ctx, c)
}

// readPump discards inbound messages and unregisters the client once the connection fails.
func (h *WebHost) readPump(ctx context.Context, c *client) {
	defer func() {
		h.mu.Lock()
		h.dropLocked(c)
		h.mu.Unlock()
		h.log.InfoContext(ctx, "UI client disconnected", "client", c.id)
	}()

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * pingPeriod))
	})
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * pingPeriod))

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebHost) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.log.Debug("UI client write failed", "client", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
