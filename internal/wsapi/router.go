// Package wsapi serves the duplex control/data channel (§6): one
// websocket endpoint per client connection, routing typed JSON messages
// into registry operations and fanning registry broadcasts back out as
// typed JSON.
package wsapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/singleflight"

	"scribecore/internal/log"
	"scribecore/internal/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// PingFunc reports whether the backing database is reachable.
type PingFunc func() error

// healthz bundles the health endpoint's dependencies. A singleflight group
// coalesces concurrent probes (load balancers and orchestrators tend to hit
// /healthz from several directions at once) into a single DB round trip.
type healthz struct {
	reg  *registry.Registry
	ping PingFunc
	sf   singleflight.Group
}

type healthResponse struct {
	Status         string `json:"status"`
	DB             string `json:"db"`
	ActiveSessions int    `json:"activeSessions"`
}

// NewRouter builds the chi router serving /ws plus the healthz/metrics
// endpoints (§9 supplemented ambient surface). ping may be nil, in which
// case the health endpoint reports db status "unknown".
func NewRouter(reg *registry.Registry, metricsHandler http.Handler, ping PingFunc) chi.Router {
	r := chi.NewRouter()
	r.Use(log.Middleware)

	hz := &healthz{reg: reg, ping: ping}

	r.Get("/ws", handleUpgrade(reg))
	r.Get("/healthz", hz.handle)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	return r
}

func handleUpgrade(reg *registry.Registry) http.HandlerFunc {
	logger := log.WithComponent("wsapi")
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		conn := newConnection(ws, reg)
		conn.serve()
		_ = ws.Close()
	}
}

func (h *healthz) handle(w http.ResponseWriter, r *http.Request) {
	dbStatus := "unknown"
	httpStatus := http.StatusOK

	if h.ping != nil {
		// "db-ping" is a fixed key: every concurrent caller within the
		// in-flight window shares one result instead of issuing its own
		// round trip to sqlite.
		_, err, _ := h.sf.Do("db-ping", func() (any, error) {
			return nil, h.ping()
		})
		if err != nil {
			dbStatus = "unreachable"
			httpStatus = http.StatusServiceUnavailable
		} else {
			dbStatus = "ok"
		}
	}

	resp := healthResponse{
		Status:         "ok",
		DB:             dbStatus,
		ActiveSessions: h.reg.ActiveSessionCount(),
	}
	if httpStatus != http.StatusOK {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}
