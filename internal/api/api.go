// Package api implements HealthAPI, the relayer's HTTP surface, routed
// with github.com/gorilla/mux in the same idiom node admin and debug
// APIs use.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/geth/log"

	"github.com/luxfi/privacy-relayer/internal/breaker"
	"github.com/luxfi/privacy-relayer/internal/metricsregistry"
	"github.com/luxfi/privacy-relayer/internal/model"
)

// Ingress accepts a front-end submitted intent into the same pipeline
// the Aleo-sourced path uses.
type Ingress interface {
	Register(intent *model.TransferIntent) error
}

// StatusSource answers the persisted-record lookup backing
// /api/transaction/{requestId}.
type StatusSource interface {
	Get(requestID string) (*model.IntentRecord, error)
}

// Server is the HealthAPI HTTP surface.
type Server struct {
	httpServer *http.Server
	startedAt  time.Time

	breakers     map[model.ChainID]*breaker.Breaker
	balanceFloor map[model.ChainID]float64
	metrics      *metricsregistry.Registry
	store        StatusSource
	ingress      Ingress
}

// Config holds the listen address and wiring dependencies.
type Config struct {
	Addr         string // default ":3001"
	Breakers     map[model.ChainID]*breaker.Breaker
	Metrics      *metricsregistry.Registry
	Store        StatusSource
	Ingress      Ingress
}

func New(cfg Config) *Server {
	s := &Server{
		startedAt: time.Now(),
		breakers:  cfg.Breakers,
		metrics:   cfg.Metrics,
		store:     cfg.Store,
		ingress:   cfg.Ingress,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/intent/register", s.handleRegister).Methods(http.MethodPost)
	router.HandleFunc("/api/transaction/{requestId}", s.handleTransaction).Methods(http.MethodGet)

	addr := cfg.Addr
	if addr == "" {
		addr = ":3001"
	}
	s.httpServer = &http.Server{Addr: addr, Handler: router}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api: server error", "err", err)
		}
	}()
}

// Shutdown drains in-flight requests with a grace period.
func (s *Server) Shutdown(grace time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	for _, b := range s.breakers {
		if b.State() == breaker.Open {
			status = "degraded"
			break
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: status, Uptime: time.Since(s.startedAt).String()})
}

type statusResponse struct {
	Breakers map[string]string `json:"breakers"`
	Uptime   string            `json:"uptime"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Breakers: make(map[string]string), Uptime: time.Since(s.startedAt).String()}
	for chainID, b := range s.breakers {
		resp.Breakers[chainID.String()] = b.State().String()
	}
	writeJSON(w, http.StatusOK, resp)
}

type registerRequest struct {
	TxID      string `json:"txId"`
	ChainID   int64  `json:"chainId"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

type registerResponse struct {
	RequestID string `json:"requestId"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	intent := &model.TransferIntent{
		RequestID:  req.TxID,
		SourceTxID: req.TxID,
		ChainID:    model.ChainID(req.ChainID),
		Amount:     req.Amount,
		Recipient:  req.Recipient,
		CreatedAt:  time.Now(),
	}
	if err := intent.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.ingress.Register(intent); err != nil {
		switch model.KindOf(err) {
		case model.KindDuplicate:
			writeError(w, http.StatusConflict, err.Error())
		case model.KindValidation:
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, registerResponse{RequestID: intent.RequestID})
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["requestId"]
	record, err := s.store.Get(requestID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "no such transaction")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
