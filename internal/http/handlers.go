package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parthgupta9/ride-pooling/internal/dispatch"
	"github.com/parthgupta9/ride-pooling/internal/models"
	"github.com/parthgupta9/ride-pooling/internal/pooling"
	"github.com/parthgupta9/ride-pooling/internal/storage"
)

type Server struct {
	Service *pooling.Service
	Store   storage.Store
	WSReg   *dispatch.WSRegistry
	logger  *slog.Logger
	mux     *mux.Router
}

func NewServer(svc *pooling.Service, store storage.Store, wsreg *dispatch.WSRegistry, logger *slog.Logger) *Server {
	s := &Server{
		Service: svc,
		Store:   store,
		WSReg:   wsreg,
		logger:  logger,
		mux:     mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/requests", s.handleSubmit).Methods("POST")
	s.mux.HandleFunc("/api/v1/requests/{id}", s.handleGetRequest).Methods("GET")
	s.mux.HandleFunc("/api/v1/requests/{id}", s.handleCancel).Methods("DELETE")
	s.mux.HandleFunc("/api/v1/requests/{id}/rating", s.handleRate).Methods("POST")
	s.mux.HandleFunc("/api/v1/estimate", s.handleEstimate).Methods("GET")
	s.mux.HandleFunc("/api/v1/pools", s.handleListPools).Methods("GET")
	s.mux.HandleFunc("/api/v1/pools/{id}", s.handleGetPool).Methods("GET")
	s.mux.HandleFunc("/api/v1/pools/{id}/complete", s.handleCompletePool).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{rider_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var cmd pooling.SubmitCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	res, err := s.Service.Submit(r.Context(), cmd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Service.Cancel(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Rating int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := s.Service.RateRequest(r.Context(), id, body.Rating); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	req, err := s.Store.GetRequest(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pickup, err1 := parseCoord(q.Get("pickup_lat"), q.Get("pickup_lon"))
	dropoff, err2 := parseCoord(q.Get("dropoff_lat"), q.Get("dropoff_lon"))
	if err1 != nil || err2 != nil {
		http.Error(w, "pickup and dropoff coordinates required", http.StatusBadRequest)
		return
	}
	if !pickup.Valid() || !dropoff.Valid() {
		http.Error(w, "coordinates out of range", http.StatusBadRequest)
		return
	}
	passengers := 1
	if v := q.Get("passengers"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < models.MinPassengers || p > models.MaxPassengers {
			http.Error(w, "passengers must be between 1 and 4", http.StatusBadRequest)
			return
		}
		passengers = p
	}
	pooled := q.Get("pooled") != "false"
	queueSize, _ := s.Service.Queue.Len(r.Context())

	breakdown := s.Service.Estimate(r.Context(), pickup, dropoff, passengers, pooled, queueSize)
	writeJSON(w, http.StatusOK, breakdown)
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := models.PoolStatus(q.Get("status"))
	if status == "" {
		status = models.PoolAssigned
	}
	limit := intParam(q.Get("limit"), 20)
	offset := intParam(q.Get("offset"), 0)

	pools, err := s.Store.ListPoolsByStatus(r.Context(), status, limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pools":  pools,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pool, err := s.Store.GetPool(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) handleCompletePool(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Service.CompletePool(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	riderID := mux.Vars(r)["rider_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	sess := s.WSReg.Add(riderID, conn)

	// the read loop exists to notice the close; riders never send anything
	// the engine acts on
	go func() {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.WSReg.Drop(riderID, sess)
				return
			}
		}
	}()
}

// writeError maps the error taxonomy onto status codes. Validation and
// conflict details are user-visible; everything else is a generic failure
// with detail only in the logs.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case pooling.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case pooling.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, pooling.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		s.logger.Error("internal error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseCoord(lat, lon string) (models.Coord, error) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return models.Coord{}, err
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return models.Coord{}, err
	}
	return models.Coord{Lat: la, Lon: lo}, nil
}

func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return def
	}
	return i
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
