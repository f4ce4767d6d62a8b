package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state. The string values are the codes
// stored in the database and returned to clients.
type Status string

const (
	StatusPendingConfirmation Status = "CHO_XAC_NHAN"
	StatusConfirmedPreparing  Status = "DA_XAC_NHAN_DANG_CHUAN_BI"
	StatusDelivered           Status = "GIAO_HANG_THANH_CONG"
	StatusCancelled           Status = "DA_HUY"
)

// Limits imposed by the NUMERIC(15,2) money columns and the INT quantity
// column.
const (
	MoneyScale  = 2
	MaxQuantity = 10000
)

// maxAmount is the first value NUMERIC(15,2) cannot hold.
var maxAmount = decimal.New(1, 13)

// ParseStatus accepts only the four known codes.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.TrimSpace(s)); st {
	case StatusPendingConfirmation, StatusConfirmedPreparing, StatusDelivered, StatusCancelled:
		return st, nil
	}
	return "", NewValidationError(fmt.Sprintf("unknown order status %q", s))
}

type PaymentMethod string

const (
	PaymentCOD  PaymentMethod = "COD"
	PaymentBank PaymentMethod = "BANK"
)

// ParsePaymentMethod never fails: anything that is not a known method
// (including the empty string) is treated as cash on delivery.
func ParsePaymentMethod(s string) PaymentMethod {
	switch pm := PaymentMethod(strings.ToUpper(strings.TrimSpace(s))); pm {
	case PaymentCOD, PaymentBank:
		return pm
	}
	return PaymentCOD
}

// Order is the aggregate root. Items belong to exactly one order and are
// always loaded together with it.
type Order struct {
	ID            string
	UserID        string
	Status        Status
	PaymentMethod PaymentMethod

	FullName string
	Phone    string
	Address  string
	Email    string
	Note     string

	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Total       decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time

	Items []Item
}

// Item is a price snapshot of one product line taken at order time.
type Item struct {
	ProductID string
	Name      string
	Slug      string
	Thumbnail string
	UnitPrice decimal.Decimal
	Quantity  int
	LineTotal decimal.Decimal
}

// ShippingInfo is the contact snapshot captured when the order is placed.
type ShippingInfo struct {
	FullName      string
	Phone         string
	Address       string
	Email         string
	Note          string
	PaymentMethod string
}

func (s ShippingInfo) validate() error {
	var missing []string
	if strings.TrimSpace(s.FullName) == "" {
		missing = append(missing, "fullName")
	}
	if strings.TrimSpace(s.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(s.Address) == "" {
		missing = append(missing, "address")
	}
	if len(missing) > 0 {
		return NewValidationError("missing shipping information: " + strings.Join(missing, ", "))
	}
	return nil
}

// NewItem snapshots p for qty units. Quantities below 1 become 1 and the
// price is rounded to the stored scale.
func NewItem(p *CatalogProduct, qty int) Item {
	if qty < 1 {
		qty = 1
	}
	price := p.EffectivePrice().Round(MoneyScale)
	return Item{
		ProductID: p.ID,
		Name:      p.Name,
		Slug:      p.Slug,
		Thumbnail: p.Thumbnail,
		UnitPrice: price,
		Quantity:  qty,
		LineTotal: price.Mul(decimal.NewFromInt(int64(qty))),
	}
}

// New builds a PendingConfirmation order and computes its totals.
func New(id, userID string, info ShippingInfo, items []Item, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, NewValidationError("cart is empty")
	}
	if err := info.validate(); err != nil {
		return nil, err
	}

	o := &Order{
		ID:            id,
		UserID:        userID,
		Status:        StatusPendingConfirmation,
		PaymentMethod: ParsePaymentMethod(info.PaymentMethod),
		FullName:      strings.TrimSpace(info.FullName),
		Phone:         strings.TrimSpace(info.Phone),
		Address:       strings.TrimSpace(info.Address),
		Email:         info.Email,
		Note:          info.Note,
		ShippingFee:   decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
		Items:         make([]Item, 0, len(items)),
	}
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Quantity < 1 {
			it.Quantity = 1
		}
		if it.Quantity > MaxQuantity {
			return nil, NewValidationError(fmt.Sprintf("quantity for product %s exceeds %d", it.ProductID, MaxQuantity))
		}
		if it.UnitPrice.IsNegative() {
			return nil, NewValidationError("product " + it.ProductID + " has a negative price")
		}
		it.UnitPrice = it.UnitPrice.Round(MoneyScale)
		it.LineTotal = it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		subtotal = subtotal.Add(it.LineTotal)
		o.Items = append(o.Items, it)
	}
	o.Subtotal = subtotal
	o.Total = subtotal.Add(o.ShippingFee)
	if o.Total.GreaterThanOrEqual(maxAmount) {
		return nil, NewValidationError("order total " + o.Total.String() + " is too large")
	}
	return o, nil
}

// Validate checks the monetary and quantity invariants of a rebuilt order.
func (o *Order) Validate() error {
	if _, err := ParseStatus(string(o.Status)); err != nil {
		return fmt.Errorf("order %s: %v", o.ID, err)
	}
	sum := decimal.Zero
	for i, it := range o.Items {
		if it.Quantity < 1 {
			return fmt.Errorf("order %s item %d: quantity %d below 1", o.ID, i, it.Quantity)
		}
		if !it.LineTotal.Equal(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))) {
			return fmt.Errorf("order %s item %d: line total mismatch", o.ID, i)
		}
		sum = sum.Add(it.LineTotal)
	}
	if !o.Subtotal.Equal(sum) {
		return fmt.Errorf("order %s: subtotal %s, items sum to %s", o.ID, o.Subtotal, sum)
	}
	if !o.Total.Equal(o.Subtotal.Add(o.ShippingFee)) {
		return fmt.Errorf("order %s: total %s != subtotal + shipping", o.ID, o.Total)
	}
	return nil
}

// Confirm is the admin transition to ConfirmedPreparing.
func (o *Order) Confirm(now time.Time) error {
	switch o.Status {
	case StatusCancelled:
		return newTransitionError("cancelled order cannot be confirmed")
	case StatusDelivered:
		return newTransitionError("order has already been delivered")
	}
	o.Status = StatusConfirmedPreparing
	o.UpdatedAt = now
	return nil
}

// Cancel is the admin transition to Cancelled. Cancelling a cancelled order
// succeeds.
func (o *Order) Cancel(now time.Time) error {
	if o.Status == StatusDelivered {
		return newTransitionError("delivered order cannot be cancelled")
	}
	o.Status = StatusCancelled
	o.UpdatedAt = now
	return nil
}

// MarkReceived is the customer transition to Delivered. It reports false
// without error when the order is already delivered.
func (o *Order) MarkReceived(now time.Time) (bool, error) {
	switch o.Status {
	case StatusCancelled:
		return false, newTransitionError("order has been cancelled")
	case StatusDelivered:
		return false, nil
	case StatusConfirmedPreparing:
		o.Status = StatusDelivered
		o.UpdatedAt = now
		return true, nil
	}
	return false, newTransitionError("order is not ready to be marked as received")
}

func (o *Order) clone() *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp
}
