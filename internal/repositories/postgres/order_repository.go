package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/orderflow/internal/domain"
	ppostgres "github.com/hanko-field/orderflow/internal/platform/postgres"
	"github.com/hanko-field/orderflow/internal/repositories"
)

const selectOrderSQL = `
	SELECT id, business_id, order_number, status, type, payment_status, currency, total,
	       delivery_fee, delivery_person_id, affiliate_id, customer, items, notes, invoice,
	       delivery_time, version, created_at, updated_at
	FROM orders
	WHERE id = $1
`

const updateOrderSQL = `
	UPDATE orders
	SET status = $2, payment_status = $3, notes = $4, invoice = $5, delivery_time = $6,
	    updated_at = $7, version = version + 1
	WHERE id = $1 AND version = $8
	RETURNING version
`

type customerJSON struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Locale string `json:"locale,omitempty"`
}

type lineItemJSON struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type invoiceJSON struct {
	Number      string `json:"number,omitempty"`
	TaxID       string `json:"tax_id,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Address     string `json:"address,omitempty"`
}

// OrderRepository reads and version-checks order rows.
type OrderRepository struct {
	db ppostgres.DB
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(db ppostgres.DB) (*OrderRepository, error) {
	if db == nil {
		return nil, errors.New("order repository: db is required")
	}
	return &OrderRepository{db: db}, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var (
		order        domain.Order
		status       string
		orderType    string
		payment      string
		customer     customerJSON
		items        []lineItemJSON
		invoice      *invoiceJSON
		deliveryTime *time.Time
	)
	err := ppostgres.Conn(ctx, r.db).QueryRow(ctx, selectOrderSQL, strings.TrimSpace(orderID)).Scan(
		&order.ID, &order.BusinessID, &order.OrderNumber, &status, &orderType, &payment,
		&order.Currency, &order.Total, &order.DeliveryFee, &order.DeliveryPersonID, &order.AffiliateID,
		&customer, &items, &order.Notes, &invoice, &deliveryTime, &order.Version,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, ppostgres.WrapError("orders.find", err)
	}

	order.Status = domain.OrderStatus(status)
	order.Type = domain.OrderType(orderType)
	order.PaymentStatus = domain.PaymentStatus(payment)
	order.Customer = domain.OrderCustomer(customer)
	for _, item := range items {
		order.Items = append(order.Items, domain.OrderLineItem(item))
	}
	if invoice != nil {
		value := domain.OrderInvoice(*invoice)
		order.Invoice = &value
	}
	if deliveryTime != nil {
		value := deliveryTime.UTC()
		order.DeliveryTime = &value
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

// Update writes the mutable columns when the row still carries expectedVersion.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedVersion int64) (domain.Order, error) {
	var invoice *invoiceJSON
	if order.Invoice != nil {
		value := invoiceJSON(*order.Invoice)
		invoice = &value
	}

	var version int64
	err := ppostgres.Conn(ctx, r.db).QueryRow(ctx, updateOrderSQL,
		order.ID, string(order.Status), string(order.PaymentStatus), order.Notes, invoice,
		order.DeliveryTime, order.UpdatedAt, expectedVersion,
	).Scan(&version)
	if err != nil {
		wrapped := ppostgres.WrapError("orders.update", err)
		var repoErr repositories.RepositoryError
		if errors.As(wrapped, &repoErr) && repoErr.IsNotFound() {
			if _, findErr := r.FindByID(ctx, order.ID); findErr == nil {
				return domain.Order{}, ppostgres.NewConflictError("orders.update",
					fmt.Errorf("order %s is no longer at version %d", order.ID, expectedVersion))
			}
		}
		return domain.Order{}, wrapped
	}
	order.Version = version
	return order, nil
}
