package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/price-broadcast/pkg/models"
)

// Broadcaster is the part of the broadcast service the HTTP layer uses.
type Broadcaster interface {
	Attach(ctx context.Context, client hub.ClientInterface)
	Snapshot(ctx context.Context) ([]models.PriceSnapshot, error)
}

type Handler struct {
	svc    Broadcaster
	hub    *hub.Hub
	logger *zap.Logger
}

func NewRouter(svc Broadcaster, h *hub.Hub, logger *zap.Logger) http.Handler {
	handler := &Handler{svc: svc, hub: h, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", handler.serveWS)
	r.Get("/healthz", handler.health)
	r.Route("/api/prices", func(pr chi.Router) {
		pr.Get("/", handler.listPrices)
		pr.Get("/{symbol}", handler.getPrice)
	})
	return r
}

func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.Debug("Upgrade failed", zap.Error(err))
		return
	}

	client := gateway.NewClient(conn, h.hub, h.logger)
	// Attach before Start so the read pump can never unregister a client
	// the hub has not seen yet.
	h.svc.Attach(r.Context(), client)
	client.Start()
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": h.hub.Count(),
	})
}

func (h *Handler) listPrices(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.svc.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("Snapshot failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "prices unavailable"})
		return
	}
	if snapshots == nil {
		snapshots = []models.PriceSnapshot{}
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (h *Handler) getPrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	snapshots, err := h.svc.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("Snapshot failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "prices unavailable"})
		return
	}
	for _, s := range snapshots {
		if s.Symbol == symbol {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "no price for " + symbol})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
