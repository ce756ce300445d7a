// Package admin exposes the operator-facing HTTP/JSON interface: zone
// and record management, cache inspection, health, and Prometheus
// metrics (spec §6). There is no tenant or API-key auth here — this
// core serves a single operator, unlike the teacher's multi-tenant
// control plane.
package admin

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poyrazK/hermesdns/internal/authority"
	"github.com/poyrazK/hermesdns/internal/cache"
	"github.com/poyrazK/hermesdns/internal/dns/packet"
)

func parseRecordType(s string) (packet.QueryType, bool) {
	switch s {
	case "A":
		return packet.A, true
	case "AAAA":
		return packet.AAAA, true
	case "NS":
		return packet.NS, true
	case "CNAME":
		return packet.CNAME, true
	case "MX":
		return packet.MX, true
	default:
		return 0, false
	}
}

// Handler wires the authority store and cache into HTTP routes.
type Handler struct {
	Store  *authority.Store
	Cache  *cache.Cache
	Logger *slog.Logger
}

// NewHandler builds an admin Handler.
func NewHandler(store *authority.Store, c *cache.Cache, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Store: store, Cache: c, Logger: logger}
}

// RegisterRoutes wires every admin endpoint onto mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /zones", h.handleListZones)
	mux.HandleFunc("POST /zones", h.handleCreateZone)
	mux.HandleFunc("GET /zones/{apex}/records", h.handleListRecords)
	mux.HandleFunc("POST /zones/{apex}/records", h.handleCreateRecord)
	mux.HandleFunc("GET /cache", h.handleCacheStats)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListZones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.ListZones())
}

type createZoneRequest struct {
	Apex      string `json:"apex"`
	PrimaryNS string `json:"primary_ns"`
	Admin     string `json:"admin"`
	Serial    uint32 `json:"serial"`
	Refresh   uint32 `json:"refresh"`
	Retry     uint32 `json:"retry"`
	Expire    uint32 `json:"expire"`
	Minimum   uint32 `json:"minimum"`
}

func (h *Handler) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	var req createZoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg := authority.ZoneConfig{
		PrimaryNS: req.PrimaryNS,
		Admin:     req.Admin,
		Serial:    req.Serial,
		Refresh:   req.Refresh,
		Retry:     req.Retry,
		Expire:    req.Expire,
		Minimum:   req.Minimum,
	}
	if err := h.Store.AddZone(req.Apex, cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.Logger.Info("admin: zone created", "apex", req.Apex, "request_id", uuid.NewString())
	writeJSON(w, http.StatusCreated, map[string]string{"apex": req.Apex})
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	apex := r.PathValue("apex")
	records, err := h.Store.ListRecords(apex)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type createRecordRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
	TTL  uint32 `json:"ttl"`
	IP   string `json:"ip,omitempty"`
	Host string `json:"host,omitempty"`
	Pref uint16 `json:"preference,omitempty"`
}

func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	apex := r.PathValue("apex")
	var req createRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	qtype, ok := parseRecordType(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("admin: unsupported record type %q", req.Type))
		return
	}

	rec := authority.Record{Name: req.Name, Type: qtype, TTL: req.TTL, IP: req.IP, Host: req.Host, Pref: req.Pref}
	if err := h.Store.UpsertRecord(apex, rec); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.Logger.Info("admin: record upserted", "apex", apex, "name", req.Name, "type", req.Type, "request_id", uuid.NewString())
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Cache.Enumerate())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
