package payment_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	paymentdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
)

func TestPaymentDatamodel(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Payment Datamodel Suite")
}

var _ = Describe("Status", func() {
	Describe("CanTransition", func() {
		It("allows the processing path for a pending payment", func() {
			Expect(paymentdm.StatusPending.CanTransition(paymentdm.StatusProcessing)).To(BeTrue())
			Expect(paymentdm.StatusPending.CanTransition(paymentdm.StatusCancelled)).To(BeTrue())
		})

		It("allows a pending payment to fail directly when no provider takes it", func() {
			Expect(paymentdm.StatusPending.CanTransition(paymentdm.StatusFailed)).To(BeTrue())
		})

		It("settles a processing payment either way", func() {
			Expect(paymentdm.StatusProcessing.CanTransition(paymentdm.StatusCompleted)).To(BeTrue())
			Expect(paymentdm.StatusProcessing.CanTransition(paymentdm.StatusFailed)).To(BeTrue())
			Expect(paymentdm.StatusProcessing.CanTransition(paymentdm.StatusCancelled)).To(BeTrue())
		})

		It("sends a failed payment back through pending for retries", func() {
			Expect(paymentdm.StatusFailed.CanTransition(paymentdm.StatusPending)).To(BeTrue())
			Expect(paymentdm.StatusFailed.CanTransition(paymentdm.StatusCancelled)).To(BeTrue())
			Expect(paymentdm.StatusFailed.CanTransition(paymentdm.StatusProcessing)).To(BeFalse())
		})

		It("refuses every move out of a terminal state", func() {
			for _, terminal := range []paymentdm.Status{paymentdm.StatusCompleted, paymentdm.StatusCancelled} {
				for _, to := range []paymentdm.Status{
					paymentdm.StatusPending, paymentdm.StatusProcessing,
					paymentdm.StatusCompleted, paymentdm.StatusFailed, paymentdm.StatusCancelled,
				} {
					Expect(terminal.CanTransition(to)).To(BeFalse())
				}
			}
		})

		It("refuses the skipped pending to completed edge", func() {
			Expect(paymentdm.StatusPending.CanTransition(paymentdm.StatusCompleted)).To(BeFalse())
		})
	})

	Describe("IsTerminal", func() {
		It("treats only completed and cancelled as terminal", func() {
			Expect(paymentdm.StatusCompleted.IsTerminal()).To(BeTrue())
			Expect(paymentdm.StatusCancelled.IsTerminal()).To(BeTrue())
			Expect(paymentdm.StatusPending.IsTerminal()).To(BeFalse())
			Expect(paymentdm.StatusProcessing.IsTerminal()).To(BeFalse())
			Expect(paymentdm.StatusFailed.IsTerminal()).To(BeFalse())
		})
	})
})
