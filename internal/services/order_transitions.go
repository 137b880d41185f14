package services

import (
	"fmt"
	"slices"

	domain "github.com/hanko-field/orderflow/internal/domain"
)

var baseOrderTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed: {domain.OrderStatusPreparing, domain.OrderStatusCancelled},
	domain.OrderStatusPreparing: {domain.OrderStatusReady, domain.OrderStatusCancelled},
	domain.OrderStatusCancelled: {domain.OrderStatusRefunded},
	domain.OrderStatusReturned:  {domain.OrderStatusRefunded},
	domain.OrderStatusRefunded:  {},
	domain.OrderStatusPickedUp:  {domain.OrderStatusReturned, domain.OrderStatusRefunded},
	domain.OrderStatusDelivered: {domain.OrderStatusReturned, domain.OrderStatusRefunded},
}

// typedOrderTransitions override the baseline for statuses whose exits depend on fulfillment.
// A status listed here with no entry for the order type has no outbound transitions.
var typedOrderTransitions = map[OrderStatus]map[OrderType][]OrderStatus{
	domain.OrderStatusReady: {
		domain.OrderTypePickup:   {domain.OrderStatusPickedUp, domain.OrderStatusCancelled},
		domain.OrderTypeDineIn:   {domain.OrderStatusPickedUp, domain.OrderStatusCancelled},
		domain.OrderTypeDelivery: {domain.OrderStatusOutForDelivery, domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	},
	domain.OrderStatusOutForDelivery: {
		domain.OrderTypeDelivery: {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	},
}

// CanTransitionOrder reports whether an order of orderType may move from current to requested.
// Staying on the same status is always allowed.
func CanTransitionOrder(current, requested OrderStatus, orderType OrderType) bool {
	if !current.Valid() || !requested.Valid() || !orderType.Valid() {
		return false
	}
	if current == requested {
		return true
	}
	if requested == domain.OrderStatusPickedUp && !orderType.IsCounterService() {
		return false
	}
	return slices.Contains(allowedTransitions(current, orderType), requested)
}

func allowedTransitions(current OrderStatus, orderType OrderType) []OrderStatus {
	if byType, ok := typedOrderTransitions[current]; ok {
		return byType[orderType]
	}
	return baseOrderTransitions[current]
}

// transitionRejection renders the message shown to staff for a rejected transition.
func transitionRejection(current, requested OrderStatus, orderType OrderType) string {
	return fmt.Sprintf("Cannot change status from `%s` to `%s` for `%s` order", current, requested, orderType)
}
