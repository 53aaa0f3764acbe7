package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
)

// MockAdapter simulates an FSP for development and tests. Submissions are
// idempotent on the internal reference: a duplicate submit returns the
// stored result instead of creating a second transfer.
type MockAdapter struct {
	code    string
	methods []payment.Method
	min     decimal.Decimal
	max     decimal.Decimal

	// settleAfter is how long a PROCESSING payment takes to complete when
	// its status is next checked.
	settleAfter time.Duration

	mu            sync.Mutex
	healthy       bool
	submitErr     error
	byReference   map[string]*SubmitResponse
	byInternalRef map[string]string
	submitCalls   int
}

func NewMockAdapter(code string, methods []payment.Method, min, max decimal.Decimal) *MockAdapter {
	return &MockAdapter{
		code:          code,
		methods:       methods,
		min:           min,
		max:           max,
		settleAfter:   5 * time.Minute,
		healthy:       true,
		byReference:   make(map[string]*SubmitResponse),
		byInternalRef: make(map[string]string),
	}
}

func (m *MockAdapter) FSPCode() string {
	return m.code
}

func (m *MockAdapter) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// FailSubmitsWith injects an error on every subsequent submit. Pass nil to
// restore normal behavior.
func (m *MockAdapter) FailSubmitsWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitErr = err
}

func (m *MockAdapter) SetSettleAfter(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settleAfter = d
}

func (m *MockAdapter) SubmitCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitCalls
}

func (m *MockAdapter) Healthy(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

func (m *MockAdapter) SupportedMethods() []payment.Method {
	return m.methods
}

func (m *MockAdapter) SupportsAmount(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(m.min) && amount.LessThanOrEqual(m.max)
}

func (m *MockAdapter) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.submitCalls++

	if m.submitErr != nil {
		return nil, m.submitErr
	}

	// duplicate internal reference returns the prior result
	if ref, ok := m.byInternalRef[req.InternalReference]; ok {
		return m.byReference[ref], nil
	}

	fspRef := fmt.Sprintf("%s-%s", m.code, strings.ToUpper(uuid.New().String()[:8]))

	var resp *SubmitResponse
	switch {
	case req.Amount.LessThan(decimal.NewFromInt(1000)):
		// small amounts settle immediately
		resp = &SubmitResponse{
			FSPReference:      fspRef,
			InternalReference: req.InternalReference,
			Status:            SubmitStatusCompleted,
			StatusMessage:     "Payment completed successfully",
			ProcessedAt:       time.Now(),
		}
	case req.Amount.GreaterThan(decimal.NewFromInt(10000)):
		resp = &SubmitResponse{
			FSPReference:      fspRef,
			InternalReference: req.InternalReference,
			Status:            SubmitStatusRejected,
			StatusMessage:     "Payment failed",
			ErrorCode:         "AMOUNT_LIMIT_EXCEEDED",
			ErrorMessage:      "Amount exceeds daily limit",
			ProcessedAt:       time.Now(),
		}
	default:
		resp = &SubmitResponse{
			FSPReference:      fspRef,
			InternalReference: req.InternalReference,
			Status:            SubmitStatusProcessing,
			StatusMessage:     "Payment is being processed",
			ProcessedAt:       time.Now(),
		}
	}

	m.byReference[fspRef] = resp
	m.byInternalRef[req.InternalReference] = fspRef

	return resp, nil
}

func (m *MockAdapter) CheckStatus(ctx context.Context, fspReference string) (*StatusResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.byReference[fspReference]
	if !ok {
		return &StatusResponse{
			FSPReference: fspReference,
			Status:       SubmitStatusRejected,
			ErrorCode:    "PAYMENT_NOT_FOUND",
			ErrorMessage: "Payment not found",
		}, nil
	}

	if stored.Status == SubmitStatusProcessing && time.Since(stored.ProcessedAt) >= m.settleAfter {
		stored.Status = SubmitStatusCompleted
		stored.StatusMessage = "Payment completed successfully"
	}

	resp := &StatusResponse{
		FSPReference:  fspReference,
		Status:        stored.Status,
		StatusMessage: stored.StatusMessage,
		ErrorCode:     stored.ErrorCode,
		ErrorMessage:  stored.ErrorMessage,
	}
	if stored.Status == SubmitStatusCompleted {
		now := time.Now()
		resp.CompletedAt = &now
	}
	return resp, nil
}

func (m *MockAdapter) Cancel(ctx context.Context, fspReference string) (*CancelResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.byReference[fspReference]
	if !ok {
		return &CancelResponse{
			FSPReference: fspReference,
			Cancelled:    false,
			Message:      "Payment not found",
		}, nil
	}

	if stored.Status == SubmitStatusCompleted {
		return &CancelResponse{
			FSPReference:   fspReference,
			Cancelled:      false,
			AlreadySettled: true,
			Message:        "Cannot cancel completed payment",
		}, nil
	}

	stored.Status = SubmitStatusCancelled
	stored.StatusMessage = "Payment cancelled successfully"

	return &CancelResponse{
		FSPReference: fspReference,
		Cancelled:    true,
		Message:      "Payment cancelled successfully",
	}, nil
}
