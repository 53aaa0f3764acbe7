package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/Kirachon/dsr-payment-service/internal"
	"github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
	providerdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/provider"
)

// ConfigStore is the slice of persistence the registry needs.
type ConfigStore interface {
	GetAll() ([]*providerdm.Config, error)
	GetByCode(fspCode string) (*providerdm.Config, error)
	UpdateHealth(fspCode string, status providerdm.HealthStatus, checkedAt time.Time) error
}

// Ranker picks one provider from a non-empty, deterministically ordered
// candidate set. The default takes the first; alternatives may rank by fee,
// success rate or latency, but must stay deterministic for a fixed snapshot.
type Ranker func(candidates []*providerdm.Config) *providerdm.Config

func FirstEligible(candidates []*providerdm.Config) *providerdm.Config {
	return candidates[0]
}

type Registry struct {
	store  ConfigStore
	logger *slog.Logger
	ranker Ranker

	mu       sync.RWMutex
	adapters map[string]Adapter
	configs  map[string]*providerdm.Config
	health   map[string]providerdm.HealthStatus
}

func NewRegistry(store ConfigStore, logger *slog.Logger) *Registry {
	return &Registry{
		store:    store,
		logger:   logger.With("component", "provider_registry"),
		ranker:   FirstEligible,
		adapters: make(map[string]Adapter),
		configs:  make(map[string]*providerdm.Config),
		health:   make(map[string]providerdm.HealthStatus),
	}
}

func (r *Registry) SetRanker(ranker Ranker) {
	if ranker != nil {
		r.ranker = ranker
	}
}

// Register wires an adapter against its persisted configuration. Referencing
// an FSP code with no configuration row is a deployment error and fails
// loudly at startup.
func (r *Registry) Register(adapter Adapter) error {
	code := adapter.FSPCode()

	cfg, err := r.store.GetByCode(code)
	if err != nil {
		return fmt.Errorf("no configuration for provider %q: %w", code, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[code] = adapter
	r.configs[code] = cfg
	// health stays unknown until the first probe completes
	r.health[code] = providerdm.HealthUnknown

	r.logger.Info("registered FSP adapter", "fsp_code", code, "sandbox", cfg.Sandbox)
	return nil
}

func (r *Registry) Adapter(fspCode string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[fspCode]
	if !ok {
		return nil, fmt.Errorf("provider adapter not registered: %s", fspCode)
	}
	return adapter, nil
}

func (r *Registry) Configs() []*providerdm.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	configs := make([]*providerdm.Config, 0, len(r.configs))
	for _, cfg := range r.configs {
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].FSPCode < configs[j].FSPCode })
	return configs
}

// HealthSnapshot returns a copy of the live health map.
func (r *Registry) HealthSnapshot() map[string]providerdm.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make(map[string]providerdm.HealthStatus, len(r.health))
	for code, status := range r.health {
		snapshot[code] = status
	}
	return snapshot
}

// MethodSupported reports whether any active provider is configured for the
// method, regardless of current health.
func (r *Registry) MethodSupported(method payment.Method) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cfg := range r.configs {
		if cfg.Active && cfg.SupportsMethod(method) {
			return true
		}
	}
	return false
}

// SelectProvider picks a healthy provider supporting the method and amount.
// Candidates are ordered by FSP code so a fixed snapshot always yields the
// same answer.
func (r *Registry) SelectProvider(method payment.Method, amount decimal.Decimal) (string, error) {
	r.mu.RLock()
	var candidates []*providerdm.Config
	for code, cfg := range r.configs {
		if r.health[code] != providerdm.HealthHealthy {
			continue
		}
		if !cfg.Active {
			continue
		}
		if !cfg.SupportsMethod(method) {
			continue
		}
		if !cfg.SupportsAmount(amount) {
			continue
		}
		candidates = append(candidates, cfg)
	}
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return "", errors.NewNoProviderError(fmt.Sprintf(
			"no healthy provider for method %s and amount %s", method, amount.StringFixed(2)))
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].FSPCode < candidates[j].FSPCode })
	selected := r.ranker(candidates)

	r.logger.Debug("selected provider",
		"fsp_code", selected.FSPCode,
		"method", method,
		"amount", amount.StringFixed(2),
		"candidates", len(candidates))

	return selected.FSPCode, nil
}

// Submit forwards to the adapter and translates failures into the error
// taxonomy. A transient failure immediately marks the provider UNHEALTHY so
// the next selection avoids it until the probe loop clears it.
func (r *Registry) Submit(ctx context.Context, fspCode string, req SubmitRequest) (*SubmitResponse, error) {
	adapter, err := r.Adapter(fspCode)
	if err != nil {
		return nil, errors.NewInternalError("provider not registered", err)
	}

	resp, err := adapter.Submit(ctx, req)
	if err != nil {
		if IsTransient(err) {
			r.logger.Warn("transient submit failure, circuit-breaking provider",
				"fsp_code", fspCode, "internal_reference", req.InternalReference, "error", err)
			r.MarkUnhealthy(fspCode)
			return nil, errors.NewProviderTransientError("provider submission failed", err)
		}
		return nil, errors.NewProviderRejectedError(err.Error())
	}

	if resp.Status == SubmitStatusRejected {
		return resp, errors.NewProviderRejectedError(resp.ErrorMessage)
	}

	return resp, nil
}

func (r *Registry) CheckStatus(ctx context.Context, fspCode, fspReference string) (*StatusResponse, error) {
	adapter, err := r.Adapter(fspCode)
	if err != nil {
		return nil, errors.NewInternalError("provider not registered", err)
	}

	resp, err := adapter.CheckStatus(ctx, fspReference)
	if err != nil {
		if IsTransient(err) {
			return nil, errors.NewProviderTransientError("provider status check failed", err)
		}
		return nil, errors.NewProviderRejectedError(err.Error())
	}
	return resp, nil
}

func (r *Registry) Cancel(ctx context.Context, fspCode, fspReference string) (*CancelResponse, error) {
	adapter, err := r.Adapter(fspCode)
	if err != nil {
		return nil, errors.NewInternalError("provider not registered", err)
	}

	resp, err := adapter.Cancel(ctx, fspReference)
	if err != nil {
		if IsTransient(err) {
			return nil, errors.NewProviderTransientError("provider cancel failed", err)
		}
		return nil, errors.NewProviderRejectedError(err.Error())
	}
	return resp, nil
}

// MarkUnhealthy is the submission-failure fallback. It goes through the same
// synchronized update path as the probe loop so the two writers cannot lose
// updates.
func (r *Registry) MarkUnhealthy(fspCode string) {
	r.setHealth(fspCode, providerdm.HealthUnhealthy, time.Now())
}

func (r *Registry) setHealth(fspCode string, status providerdm.HealthStatus, checkedAt time.Time) {
	r.mu.Lock()
	r.health[fspCode] = status
	if cfg, ok := r.configs[fspCode]; ok {
		cfg.HealthStatus = status
		cfg.LastHealthCheck = &checkedAt
	}
	r.mu.Unlock()

	if err := r.store.UpdateHealth(fspCode, status, checkedAt); err != nil {
		r.logger.Warn("failed to persist provider health", "fsp_code", fspCode, "error", err)
	}
}

// ProbeAll checks every registered adapter concurrently. Each probe is
// isolated behind its own timeout so one hanging provider cannot stall the
// rest.
func (r *Registry) ProbeAll(ctx context.Context, probeTimeout time.Duration) {
	r.mu.RLock()
	adapters := make(map[string]Adapter, len(r.adapters))
	for code, adapter := range r.adapters {
		adapters[code] = adapter
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for code, adapter := range adapters {
		wg.Add(1)
		go func(code string, adapter Adapter) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			healthy := r.probe(probeCtx, adapter)

			status := providerdm.HealthUnhealthy
			if healthy {
				status = providerdm.HealthHealthy
			}
			r.setHealth(code, status, time.Now())

			r.logger.Debug("probed provider", "fsp_code", code, "healthy", healthy)
		}(code, adapter)
	}
	wg.Wait()

	healthyCount := 0
	for _, status := range r.HealthSnapshot() {
		if status == providerdm.HealthHealthy {
			healthyCount++
		}
	}
	r.logger.Info("health probe pass completed", "healthy", healthyCount, "total", len(adapters))
}

// probe never lets an adapter panic or hang past its deadline. The recover
// lives in the goroutine that calls Healthy, since a recover only catches
// panics on its own stack.
func (r *Registry) probe(ctx context.Context, adapter Adapter) bool {
	done := make(chan bool, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("adapter health probe panicked", "fsp_code", adapter.FSPCode(), "panic", rec)
				done <- false
			}
		}()
		done <- adapter.Healthy(ctx)
	}()

	select {
	case ok := <-done:
		return ok
	case <-ctx.Done():
		return false
	}
}
