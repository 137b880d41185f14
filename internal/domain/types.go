package domain

import (
	"strings"
	"time"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed and awaits confirmation by the business.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusConfirmed indicates the business accepted the order.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusPreparing indicates the kitchen is working on the order.
	OrderStatusPreparing OrderStatus = "PREPARING"
	// OrderStatusReady indicates the order is ready for pickup or courier handoff.
	OrderStatusReady OrderStatus = "READY"
	// OrderStatusOutForDelivery indicates a courier is on the way (delivery orders only).
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusPickedUp indicates the customer collected the order (pickup and dine-in only).
	OrderStatusPickedUp OrderStatus = "PICKED_UP"
	// OrderStatusCancelled indicates the order was cancelled before completion.
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusReturned indicates a completed order was returned.
	OrderStatusReturned OrderStatus = "RETURNED"
	// OrderStatusRefunded is terminal.
	OrderStatusRefunded OrderStatus = "REFUNDED"
)

// OrderStatuses lists every known status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusPickedUp,
	OrderStatusCancelled,
	OrderStatusReturned,
	OrderStatusRefunded,
}

// Valid reports whether the status is one of the known lifecycle states.
func (s OrderStatus) Valid() bool {
	for _, candidate := range OrderStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// ParseOrderStatus normalises user input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(value)))
	return status, status.Valid()
}

// OrderType is the fulfillment channel of an order.
type OrderType string

const (
	OrderTypeDelivery OrderType = "DELIVERY"
	OrderTypePickup   OrderType = "PICKUP"
	OrderTypeDineIn   OrderType = "DINE_IN"
)

// OrderTypes lists every known fulfillment channel.
var OrderTypes = []OrderType{OrderTypeDelivery, OrderTypePickup, OrderTypeDineIn}

// Valid reports whether the type is a known fulfillment channel.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeDelivery, OrderTypePickup, OrderTypeDineIn:
		return true
	}
	return false
}

// IsCounterService reports whether the customer collects the order in person.
func (t OrderType) IsCounterService() bool {
	return t == OrderTypePickup || t == OrderTypeDineIn
}

// PaymentStatus captures the payment state tracked on the order header.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// Valid reports whether the payment status is recognised.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// ParsePaymentStatus normalises user input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, bool) {
	status := PaymentStatus(strings.ToUpper(strings.TrimSpace(value)))
	return status, status.Valid()
}

// Order captures the order header mutated by the lifecycle engine.
type Order struct {
	ID               string
	BusinessID       string
	OrderNumber      string
	Status           OrderStatus
	Type             OrderType
	PaymentStatus    PaymentStatus
	Currency         string
	Total            int64
	DeliveryFee      int64
	DeliveryPersonID *string
	AffiliateID      *string
	Customer         OrderCustomer
	Items            []OrderLineItem
	Notes            string
	Invoice          *OrderInvoice
	DeliveryTime     *time.Time
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderCustomer holds the contact data used for notifications.
type OrderCustomer struct {
	ID     string
	Name   string
	Email  string
	Phone  string
	Locale string
}

// OrderLineItem is a snapshot of a purchased item. Amounts are in the smallest currency unit.
type OrderLineItem struct {
	Name      string
	Quantity  int
	UnitPrice int64
}

// OrderInvoice holds invoice metadata supplied by staff after checkout.
type OrderInvoice struct {
	Number      string
	TaxID       string
	CompanyName string
	Address     string
}

// HasDeliveryPerson reports whether a courier is assigned.
func (o Order) HasDeliveryPerson() bool {
	return o.DeliveryPersonID != nil && strings.TrimSpace(*o.DeliveryPersonID) != ""
}

// HasAffiliate reports whether the order was referred by an affiliate.
func (o Order) HasAffiliate() bool {
	return o.AffiliateID != nil && strings.TrimSpace(*o.AffiliateID) != ""
}
