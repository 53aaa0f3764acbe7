package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	internal "github.com/Kirachon/dsr-payment-service/internal"
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

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("CreatePayment: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := internal.ActorFromContext(r.Context())
	resp, err := h.Service.CreatePayment(&req, actor)
	if err != nil {
		h.Logger.Error("CreatePayment: service error", "error", err)
		h.HandleError(w, err)
		return
	}

	h.Logger.Info("CreatePayment: payment created",
		"payment_id", resp.ID,
		"internal_reference", resp.InternalReference,
		"amount", resp.Amount)

	h.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	resp, err := h.Service.GetPayment(id)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetPaymentByReference(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		h.WriteError(w, http.StatusBadRequest, "missing internal reference")
		return
	}

	resp, err := h.Service.GetPaymentByReference(reference)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) SearchPayments(w http.ResponseWriter, r *http.Request) {
	filter, err := searchFilterFromQuery(r)
	if err != nil {
		h.Logger.Error("SearchPayments: bad query", "error", err)
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	payments, err := h.Service.SearchPayments(filter)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"payments": payments,
		"count":    len(payments),
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	actor := internal.ActorFromContext(r.Context())
	resp, err := h.Service.ProcessPayment(r.Context(), id, actor)
	if err != nil {
		h.Logger.Error("ProcessPayment: service error", "error", err, "payment_id", id)
		h.HandleError(w, err)
		return
	}

	h.Logger.Info("ProcessPayment: attempt finished",
		"payment_id", id,
		"status", resp.Status,
		"fsp_code", resp.FSPCode)

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	var req CancelPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("CancelPayment: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleError(w, err)
		return
	}

	actor := internal.ActorFromContext(r.Context())
	resp, err := h.Service.CancelPayment(r.Context(), id, req.Reason, actor)
	if err != nil {
		h.Logger.Error("CancelPayment: service error", "error", err, "payment_id", id)
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	actor := internal.ActorFromContext(r.Context())
	resp, err := h.Service.RetryPayment(r.Context(), id, actor)
	if err != nil {
		h.Logger.Error("RetryPayment: service error", "error", err, "payment_id", id)
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) CheckPaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	resp, err := h.Service.CheckPaymentStatus(r.Context(), id)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Service.Statistics()
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) paymentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.Logger.Error("invalid payment ID", "id", idStr)
		h.WriteError(w, http.StatusBadRequest, "invalid payment ID")
		return uuid.Nil, false
	}
	return id, true
}

func searchFilterFromQuery(r *http.Request) (SearchFilter, error) {
	filter := SearchFilter{Limit: 100}
	query := r.URL.Query()

	if v := query.Get("household_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, internal.NewValidationError("invalid household_id", internal.ErrCodeValidationFailed)
		}
		filter.HouseholdID = &id
	}
	if v := query.Get("program_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, internal.NewValidationError("invalid program_id", internal.ErrCodeValidationFailed)
		}
		filter.ProgramID = &id
	}
	if v := query.Get("batch_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, internal.NewValidationError("invalid batch_id", internal.ErrCodeValidationFailed)
		}
		filter.BatchID = &id
	}
	if v := query.Get("status"); v != "" {
		status, ok := ParseStatus(v)
		if !ok {
			return filter, internal.NewValidationError("invalid status", internal.ErrCodeInvalidPaymentStatus)
		}
		filter.Status = &status
	}
	filter.FSPCode = query.Get("fsp_code")

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
