package services

import domain "github.com/hanko-field/orderflow/internal/domain"

// ResolvePaymentCascade returns the payment status implied by a status change when the caller did
// not set one explicitly. Only a move into CANCELLED cascades: uncaptured payments fail and captured
// payments become refunds for the payout process to reconcile.
func ResolvePaymentCascade(previous, next OrderStatus, current PaymentStatus, explicit *PaymentStatus) (PaymentStatus, bool) {
	if explicit != nil || previous == next || next != domain.OrderStatusCancelled {
		return current, false
	}
	switch current {
	case domain.PaymentStatusPending:
		return domain.PaymentStatusFailed, true
	case domain.PaymentStatusPaid:
		return domain.PaymentStatusRefunded, true
	default:
		return current, false
	}
}
