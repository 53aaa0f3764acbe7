package batch

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	internal "github.com/Kirachon/dsr-payment-service/internal"
	batchdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/batch"
	"github.com/Kirachon/dsr-payment-service/internal/transport"
	"github.com/Kirachon/dsr-payment-service/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("CreateBatch: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := internal.ActorFromContext(r.Context())
	resp, err := h.Service.CreateBatch(&req, actor)
	if err != nil {
		h.Logger.Error("CreateBatch: service error", "error", err)
		h.HandleError(w, err)
		return
	}

	h.Logger.Info("CreateBatch: batch created",
		"batch_id", resp.ID,
		"batch_number", resp.BatchNumber,
		"total_payments", resp.TotalPayments)

	h.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchID(w, r)
	if !ok {
		return
	}

	resp, err := h.Service.GetBatch(id)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetBatchByNumber(w http.ResponseWriter, r *http.Request) {
	batchNumber := chi.URLParam(r, "batchNumber")
	if batchNumber == "" {
		h.WriteError(w, http.StatusBadRequest, "missing batch number")
		return
	}

	resp, err := h.Service.GetBatchByNumber(batchNumber)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) SearchBatches(w http.ResponseWriter, r *http.Request) {
	filter, err := searchFilterFromQuery(r)
	if err != nil {
		h.Logger.Error("SearchBatches: bad query", "error", err)
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	batches, err := h.Service.SearchBatches(filter)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batches": batches,
		"count":   len(batches),
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

func (h *Handler) StartBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchID(w, r)
	if !ok {
		return
	}

	actor := internal.ActorFromContext(r.Context())
	resp, err := h.Service.StartBatch(r.Context(), id, actor)
	if err != nil {
		h.Logger.Error("StartBatch: service error", "error", err, "batch_id", id)
		h.HandleError(w, err)
		return
	}

	h.Logger.Info("StartBatch: batch started", "batch_id", id, "batch_number", resp.BatchNumber)
	h.WriteJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) PauseBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchID(w, r)
	if !ok {
		return
	}

	actor := internal.ActorFromContext(r.Context())
	resp, err := h.Service.PauseBatch(r.Context(), id, actor)
	if err != nil {
		h.Logger.Error("PauseBatch: service error", "error", err, "batch_id", id)
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) ResumeBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchID(w, r)
	if !ok {
		return
	}

	actor := internal.ActorFromContext(r.Context())
	resp, err := h.Service.ResumeBatch(r.Context(), id, actor)
	if err != nil {
		h.Logger.Error("ResumeBatch: service error", "error", err, "batch_id", id)
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchID(w, r)
	if !ok {
		return
	}

	var req CancelBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("CancelBatch: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleError(w, err)
		return
	}

	actor := internal.ActorFromContext(r.Context())
	resp, err := h.Service.CancelBatch(r.Context(), id, req.Reason, actor)
	if err != nil {
		h.Logger.Error("CancelBatch: service error", "error", err, "batch_id", id)
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchID(w, r)
	if !ok {
		return
	}

	resp, err := h.Service.Progress(id)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) batchID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.Logger.Error("invalid batch ID", "id", idStr)
		h.WriteError(w, http.StatusBadRequest, "invalid batch ID")
		return uuid.Nil, false
	}
	return id, true
}

func searchFilterFromQuery(r *http.Request) (SearchFilter, error) {
	filter := SearchFilter{Limit: 100}
	query := r.URL.Query()

	if v := query.Get("program_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, internal.NewValidationError("invalid program_id", internal.ErrCodeValidationFailed)
		}
		filter.ProgramID = &id
	}
	if v := query.Get("status"); v != "" {
		status := batchdm.Status(v)
		switch status {
		case batchdm.StatusPending, batchdm.StatusProcessing, batchdm.StatusCompleted,
			batchdm.StatusFailed, batchdm.StatusCancelled, batchdm.StatusPaused:
			filter.Status = &status
		default:
			return filter, internal.NewValidationError("invalid status", internal.ErrCodeInvalidBatchStatus)
		}
	}
	if v := query.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, internal.NewValidationError("invalid from date, expected RFC3339", internal.ErrCodeValidationFailed)
		}
		filter.From = &from
	}
	if v := query.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, internal.NewValidationError("invalid to date, expected RFC3339", internal.ErrCodeValidationFailed)
		}
		filter.To = &to
	}
	if v := query.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 && limit <= 500 {
			filter.Limit = limit
		}
	}
	if v := query.Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	return filter, nil
}
