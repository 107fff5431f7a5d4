package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamware/place/internal/board"
	"github.com/dreamware/place/internal/transport"
)

// cellJSON is one cell of the /board response.
type cellJSON struct {
	Row       int    `json:"row"`
	Col       int    `json:"col"`
	Color     string `json:"color"`
	Owner     string `json:"owner,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type boardJSON struct {
	Dimension int        `json:"dimension"`
	Sessions  []string   `json:"sessions"`
	Rows      []string   `json:"rows"` // One hex digit per cell
	Cells     []cellJSON `json:"cells"`
}

// Router returns the HTTP surface of the server: health, a JSON board dump,
// the websocket transport and, when gatherer is non-nil, Prometheus metrics.
//
// Routes:
//   - GET /healthz
//   - GET /board
//   - GET /ws (upgrades to a binary websocket speaking the envelope protocol)
//   - GET /metrics
func (s *Server) Router(gatherer prometheus.Gatherer) http.Handler {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, w, req)
			s.log.Debug("handled", "method", req.Method, "url", req.URL, "duration", m.Duration, "status", m.Code)
		})
	})

	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Methods(http.MethodGet).Path("/board").HandlerFunc(s.handleBoard)
	r.Methods(http.MethodGet).Path("/ws").HandlerFunc(s.handleWebSocket)
	if gatherer != nil {
		r.Methods(http.MethodGet).Path("/metrics").Handler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) handleBoard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, encodeBoard(s.hub.Snapshot(), s.hub.Sessions()))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	ws := transport.NewWebSocket(conn, s.cfg.MaxFrameSize)
	if !s.serveConn(ws) {
		_ = ws.Close()
	}
}

func encodeBoard(snap board.Snapshot, sessions []string) boardJSON {
	out := boardJSON{
		Dimension: snap.Dimension,
		Sessions:  sessions,
		Rows:      make([]string, 0, snap.Dimension),
		Cells:     make([]cellJSON, 0, len(snap.Cells)),
	}
	row := make([]byte, 0, snap.Dimension)
	for i, c := range snap.Cells {
		row = append(row, c.Color.Digit()...)
		if (i+1)%snap.Dimension == 0 {
			out.Rows = append(out.Rows, string(row))
			row = row[:0]
		}
		out.Cells = append(out.Cells, cellJSON{
			Row:       c.Row,
			Col:       c.Col,
			Color:     c.Color.String(),
			Owner:     c.Owner,
			Timestamp: c.Timestamp,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write json response", "err", err)
	}
}
