package audit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	"github.com/Kirachon/dsr-payment-service/internal/transport"
	"github.com/Kirachon/dsr-payment-service/pkg/logger"

	auditdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/audit"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(service *Service) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) PaymentTrail(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.Logger.Error("invalid payment ID", "id", idStr)
		h.WriteError(w, http.StatusBadRequest, "invalid payment ID")
		return
	}

	records, err := h.Service.ForPayment(id)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.writeTrail(w, records)
}

func (h *Handler) BatchTrail(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.Logger.Error("invalid batch ID", "id", idStr)
		h.WriteError(w, http.StatusBadRequest, "invalid batch ID")
		return
	}

	records, err := h.Service.ForBatch(id)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.writeTrail(w, records)
}

func (h *Handler) CorrelationTrail(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationID")
	if correlationID == "" {
		h.WriteError(w, http.StatusBadRequest, "correlation ID is required")
		return
	}

	records, err := h.Service.Trail(correlationID)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.writeTrail(w, records)
}

func (h *Handler) writeTrail(w http.ResponseWriter, records []*auditdm.Record) {
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}
