package provider

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Kirachon/dsr-payment-service/internal/transport"
	"github.com/Kirachon/dsr-payment-service/pkg/logger"

	providerdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/provider"
)

type Handler struct {
	*transport.BaseHandler
	Registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Registry:    registry,
	}
}

type providerView struct {
	FSPCode             string                  `json:"fsp_code"`
	Name                string                  `json:"name"`
	SupportedMethods    []string                `json:"supported_methods"`
	SupportedCurrencies string                  `json:"supported_currencies"`
	MinAmount           *string                 `json:"min_amount,omitempty"`
	MaxAmount           *string                 `json:"max_amount,omitempty"`
	Active              bool                    `json:"active"`
	Sandbox             bool                    `json:"sandbox"`
	HealthStatus        providerdm.HealthStatus `json:"health_status"`
	LastHealthCheck     *time.Time              `json:"last_health_check,omitempty"`
}

func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	configs := h.Registry.Configs()

	views := make([]providerView, 0, len(configs))
	for _, cfg := range configs {
		view := providerView{
			FSPCode:             cfg.FSPCode,
			Name:                cfg.FSPName,
			SupportedCurrencies: cfg.SupportedCurrencies,
			Active:              cfg.Active,
			Sandbox:             cfg.Sandbox,
			HealthStatus:        cfg.HealthStatus,
			LastHealthCheck:     cfg.LastHealthCheck,
		}
		for _, method := range cfg.Methods() {
			view.SupportedMethods = append(view.SupportedMethods, string(method))
		}
		if cfg.MinAmount != nil {
			s := cfg.MinAmount.String()
			view.MinAmount = &s
		}
		if cfg.MaxAmount != nil {
			s := cfg.MaxAmount.String()
			view.MaxAmount = &s
		}
		views = append(views, view)
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"providers": views,
		"count":     len(views),
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	snapshot := h.Registry.HealthSnapshot()

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"providers":  snapshot,
		"checked_at": time.Now(),
	})
}
