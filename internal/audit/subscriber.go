package audit

import (
	"context"

	auditdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/audit"
	"github.com/Kirachon/dsr-payment-service/internal/core/events"
)

// RegisterSubscribers appends settlement outcome records off the event bus.
// State transitions are audited inline by the services; these records mark
// the business outcome of an attempt under its own event type.
func RegisterSubscribers(bus *events.EventBus, recorder Recorder) {
	bus.Subscribe(events.EventTypePaymentCompleted, func(ctx context.Context, event events.Event) error {
		e, ok := event.(*events.PaymentCompletedEvent)
		if !ok {
			return nil
		}
		recorder.Record(&auditdm.Record{
			PaymentID:   &e.PaymentID,
			EventType:   auditdm.EventPaymentCompleted,
			Description: "Payment " + e.InternalReference + " settled by FSP " + e.FSPCode,
		})
		return nil
	})

	bus.Subscribe(events.EventTypePaymentFailed, func(ctx context.Context, event events.Event) error {
		e, ok := event.(*events.PaymentFailedEvent)
		if !ok {
			return nil
		}
		recorder.Record(&auditdm.Record{
			PaymentID:    &e.PaymentID,
			EventType:    auditdm.EventPaymentFailed,
			ErrorMessage: e.FailureReason,
			Description:  "Payment " + e.InternalReference + " failed",
		})
		return nil
	})
}
