// Copyright 2025 Certen Protocol
//
// Package server is the RPC adapter (spec.md §1, §6): it translates HTTP
// requests into Engine calls and Engine results back into structured
// responses. It owns no ledger semantics of its own — every error kind and
// operation contract comes straight from pkg/engine.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/certenio/ledgerd/pkg/chain"
	"github.com/certenio/ledgerd/pkg/engine"
	"github.com/certenio/ledgerd/pkg/ledgererr"
)

// Response is the structured envelope every operation returns (spec.md §6:
// "success, a human message, and a typed payload").
type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	RequestID uuid.UUID   `json:"request_id"`
	Data      interface{} `json:"data,omitempty"`
}

// Server wires the Engine to an HTTP mux implementing the RPC surface.
type Server struct {
	eng    *engine.Engine
	logger *log.Logger
	mux    *http.ServeMux
}

// New constructs a Server and registers its routes.
func New(eng *engine.Engine) *Server {
	s := &Server{
		eng:    eng,
		logger: log.New(log.Writer(), "[Server] ", log.LstdFlags),
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the server's http.Handler, for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/chains", s.handleCreateChain)
	s.mux.HandleFunc("GET /v1/chains", s.handleListChains)
	s.mux.HandleFunc("GET /v1/chains/{chain_id}", s.handleGetChainInfo)
	s.mux.HandleFunc("GET /v1/chains/{chain_id}/verify", s.handleVerifyChain)
	s.mux.HandleFunc("GET /v1/chains/{chain_id}/head", s.handleGetHead)
	s.mux.HandleFunc("POST /v1/chains/{chain_id}/blocks", s.handleAppendBlock)
	s.mux.HandleFunc("GET /v1/chains/{chain_id}/blocks", s.handleGetBlockRange)
	s.mux.HandleFunc("GET /v1/chains/{chain_id}/blocks/{fingerprint}", s.handleGetBlock)
	s.mux.HandleFunc("GET /v1/cross-validate", s.handleCrossValidate)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), Response{
		Success:   false,
		Message:   err.Error(),
		RequestID: uuid.New(),
	})
}

func (s *Server) writeOK(w http.ResponseWriter, status int, message string, data interface{}) {
	s.writeJSON(w, status, Response{
		Success:   true,
		Message:   message,
		RequestID: uuid.New(),
		Data:      data,
	})
}

// statusFor maps an engine error kind to a transport status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledgererr.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ledgererr.ErrUnknownChain), errors.Is(err, ledgererr.ErrNotFound), errors.Is(err, ledgererr.ErrEmpty):
		return http.StatusNotFound
	case errors.Is(err, ledgererr.ErrInvalidArgument),
		errors.Is(err, ledgererr.ErrInvalidLinkage),
		errors.Is(err, ledgererr.ErrInvalidHeight),
		errors.Is(err, ledgererr.ErrInvalidFingerprint),
		errors.Is(err, ledgererr.ErrInsufficientDifficulty),
		errors.Is(err, ledgererr.ErrInvalidCrossRef),
		errors.Is(err, ledgererr.ErrPayloadTooLarge),
		errors.Is(err, ledgererr.ErrRangeTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, ledgererr.ErrMiningExhausted), errors.Is(err, ledgererr.ErrConcurrentAppend):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type createChainRequest struct {
	ChainID     string `json:"chain_id"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Difficulty  *int   `json:"difficulty,omitempty"`
}

func (s *Server) handleCreateChain(w http.ResponseWriter, r *http.Request) {
	var req createChainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, ledgererr.ErrInvalidArgument)
		return
	}
	// req.Difficulty is nil unless the caller explicitly set one; spec.md
	// §6 only names chain_id, kind, description as CreateChain inputs, so
	// the engine falls back to its configured default_difficulty.
	c, err := s.eng.CreateChain(req.ChainID, chain.Kind(req.Kind), req.Description, req.Difficulty)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w, http.StatusCreated, "chain created", c)
}

func (s *Server) handleListChains(w http.ResponseWriter, r *http.Request) {
	s.writeOK(w, http.StatusOK, "ok", s.eng.ListChains())
}

type chainInfoResponse struct {
	Chain interface{} `json:"chain"`
	Valid bool        `json:"valid"`
}

func (s *Server) handleGetChainInfo(w http.ResponseWriter, r *http.Request) {
	chainID := r.PathValue("chain_id")
	c, valid, err := s.eng.GetChainInfo(chainID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w, http.StatusOK, "ok", chainInfoResponse{Chain: c, Valid: valid})
}

type violationDTO struct {
	Height uint64 `json:"height"`
	Error  string `json:"error"`
}

type verifyChainResponse struct {
	Valid      bool           `json:"valid"`
	Violations []violationDTO `json:"violations"`
}

func (s *Server) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	chainID := r.PathValue("chain_id")
	violations, err := s.eng.VerifyChain(chainID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	dtos := make([]violationDTO, 0, len(violations))
	for _, v := range violations {
		dtos = append(dtos, violationDTO{Height: v.Height, Error: v.Err.Error()})
	}
	s.writeOK(w, http.StatusOK, "ok", verifyChainResponse{Valid: len(dtos) == 0, Violations: dtos})
}

func (s *Server) handleGetHead(w http.ResponseWriter, r *http.Request) {
	chainID := r.PathValue("chain_id")
	b, err := s.eng.GetHead(chainID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w, http.StatusOK, "ok", b)
}

type appendBlockRequest struct {
	Payload   []byte   `json:"payload"`
	CrossRefs []string `json:"cross_refs"`
}

func (s *Server) handleAppendBlock(w http.ResponseWriter, r *http.Request) {
	chainID := r.PathValue("chain_id")
	var req appendBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, ledgererr.ErrInvalidArgument)
		return
	}
	b, err := s.eng.Append(r.Context(), chainID, req.Payload, req.CrossRefs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w, http.StatusCreated, "block appended", b)
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	chainID := r.PathValue("chain_id")
	fingerprint := r.PathValue("fingerprint")
	b, err := s.eng.GetBlock(chainID, fingerprint)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w, http.StatusOK, "ok", b)
}

func (s *Server) handleGetBlockRange(w http.ResponseWriter, r *http.Request) {
	chainID := r.PathValue("chain_id")
	from, err := parseUintParam(r, "from", 0)
	if err != nil {
		s.writeError(w, ledgererr.ErrInvalidArgument)
		return
	}
	to, err := parseUintParam(r, "to", 0)
	if err != nil {
		s.writeError(w, ledgererr.ErrInvalidArgument)
		return
	}
	blocks, err := s.eng.GetBlockRange(chainID, from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w, http.StatusOK, "ok", blocks)
}

func parseUintParam(r *http.Request, name string, defaultValue uint64) (uint64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultValue, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

type crossValidateStatusDTO struct {
	Valid          bool           `json:"valid"`
	Violations     []violationDTO `json:"violations"`
	CrossRefErrors []string       `json:"cross_ref_errors"`
}

func (s *Server) handleCrossValidate(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.eng.CrossValidate()
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make(map[string]crossValidateStatusDTO, len(statuses))
	for id, status := range statuses {
		dtos := make([]violationDTO, 0, len(status.Violations))
		for _, v := range status.Violations {
			dtos = append(dtos, violationDTO{Height: v.Height, Error: v.Err.Error()})
		}
		refErrs := make([]string, 0, len(status.CrossRefErrors))
		for _, e := range status.CrossRefErrors {
			refErrs = append(refErrs, e.Error())
		}
		out[id] = crossValidateStatusDTO{Valid: status.Valid(), Violations: dtos, CrossRefErrors: refErrs}
	}
	s.writeOK(w, http.StatusOK, "ok", out)
}
