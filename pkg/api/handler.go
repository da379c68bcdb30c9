package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/trace-processor/pkg/processor"
	"github.com/ethpandaops/trace-processor/pkg/store"
)

// BlockProcessor re-processes blocks on demand.
type BlockProcessor interface {
	ProcessBlock(ctx context.Context, number uint64) (*store.BlockRecord, error)
}

// BlockReader reads stored blocks.
type BlockReader interface {
	Block(ctx context.Context, number uint64) (*store.BlockRecord, error)
}

type Handler struct {
	log       logrus.FieldLogger
	processor BlockProcessor
	blocks    BlockReader
}

func NewHandler(log logrus.FieldLogger, processor BlockProcessor, blocks BlockReader) *Handler {
	return &Handler{
		log:       log.WithField("component", "api"),
		processor: processor,
		blocks:    blocks,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/blocks/{block_number}", h.processBlock)
	mux.HandleFunc("GET /api/v1/blocks/{block_number}", h.getBlock)
}

type ProcessBlockResponse struct {
	Status           string `json:"status"`
	BlockNumber      uint64 `json:"block_number"`
	BlockHash        string `json:"block_hash"`
	TransactionCount int    `json:"transaction_count"`
	TraceCount       int    `json:"trace_count"`
}

type ErrorResponse struct {
	Error       string `json:"error"`
	BlockNumber any    `json:"block_number,omitempty"`
}

func (h *Handler) parseBlockNumber(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := r.PathValue("block_number")

	number, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid block number format", raw)

		return 0, false
	}

	return number, true
}

func (h *Handler) processBlock(w http.ResponseWriter, r *http.Request) {
	number, ok := h.parseBlockNumber(w, r)
	if !ok {
		return
	}

	record, err := h.processor.ProcessBlock(r.Context(), number)
	if err != nil {
		switch {
		case errors.Is(err, processor.ErrBlockNotFound):
			h.writeError(w, http.StatusNotFound, "block not found on execution node", number)
		case errors.Is(err, processor.ErrNotStarted):
			h.writeError(w, http.StatusServiceUnavailable, "processor is not started", number)
		default:
			h.log.WithError(err).WithField("block_number", number).Error("Failed to process block")
			h.writeError(w, http.StatusBadGateway, err.Error(), number)
		}

		return
	}

	h.writeJSON(w, http.StatusOK, ProcessBlockResponse{
		Status:           "processed",
		BlockNumber:      record.Number,
		BlockHash:        record.Hash.Hex(),
		TransactionCount: len(record.Transactions),
		TraceCount:       record.TraceCount(),
	})
}

func (h *Handler) getBlock(w http.ResponseWriter, r *http.Request) {
	number, ok := h.parseBlockNumber(w, r)
	if !ok {
		return
	}

	record, err := h.blocks.Block(r.Context(), number)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "block not stored", number)

			return
		}

		h.writeError(w, http.StatusInternalServerError, err.Error(), number)

		return
	}

	h.writeJSON(w, http.StatusOK, record)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.WithError(err).Error("failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string, blockNumber any) {
	h.writeJSON(w, status, ErrorResponse{
		Error:       message,
		BlockNumber: blockNumber,
	})
}
