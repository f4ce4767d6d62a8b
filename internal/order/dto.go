package order

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Timestamp layouts for OrderView. Existing clients parse the legacy one.
const (
	LegacyTimeLayout = "02/01/2006 15:04"
	ISOTimeLayout    = time.RFC3339
)

// ProductRef accepts both numeric and string product ids in JSON.
type ProductRef string

func (r *ProductRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = ProductRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("productId must be a string or number: %w", err)
	}
	*r = ProductRef(n.String())
	return nil
}

// CreateOrderItem is one requested line.
// swagger:model CreateOrderItem
type CreateOrderItem struct {
	ProductID ProductRef `json:"productId" swaggertype:"string" example:"42"`
	Quantity  *int       `json:"quantity" example:"2"`
}

// CreateOrderRequest is the checkout payload.
// swagger:model CreateOrderRequest
type CreateOrderRequest struct {
	FullName      string            `json:"fullName" example:"Nguyen Van A"`
	Phone         string            `json:"phone" example:"0901234567"`
	Address       string            `json:"address" example:"12 Le Loi, District 1, HCMC"`
	Email         string            `json:"email,omitempty" example:"a@example.com"`
	Note          string            `json:"note,omitempty"`
	PaymentMethod string            `json:"paymentMethod,omitempty" example:"COD"`
	Items         []CreateOrderItem `json:"items"`
}

func (r CreateOrderRequest) shipping() ShippingInfo {
	return ShippingInfo{
		FullName:      r.FullName,
		Phone:         r.Phone,
		Address:       r.Address,
		Email:         r.Email,
		Note:          r.Note,
		PaymentMethod: r.PaymentMethod,
	}
}

// ItemView is one line of an OrderView.
// swagger:model ItemView
type ItemView struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	Thumbnail string          `json:"thumbnail"`
	UnitPrice decimal.Decimal `json:"unitPrice" swaggertype:"number"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal" swaggertype:"number"`
}

// View is the response shape for one order.
// swagger:model OrderView
type View struct {
	ID            string          `json:"id"`
	Status        Status          `json:"status"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	FullName      string          `json:"fullName"`
	Phone         string          `json:"phone"`
	Address       string          `json:"address"`
	Email         string          `json:"email"`
	Note          string          `json:"note"`
	Subtotal      decimal.Decimal `json:"subtotal" swaggertype:"number"`
	ShippingFee   decimal.Decimal `json:"shippingFee" swaggertype:"number"`
	Total         decimal.Decimal `json:"total" swaggertype:"number"`
	CreatedAt     string          `json:"createdAt"`
	UpdatedAt     string          `json:"updatedAt"`
	Items         []ItemView      `json:"items"`
}

// ToView renders o with timestamps in loc using layout.
func ToView(o *Order, loc *time.Location, layout string) *View {
	v := &View{
		ID:            o.ID,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		FullName:      o.FullName,
		Phone:         o.Phone,
		Address:       o.Address,
		Email:         o.Email,
		Note:          o.Note,
		Subtotal:      o.Subtotal,
		ShippingFee:   o.ShippingFee,
		Total:         o.Total,
		CreatedAt:     formatTime(o.CreatedAt, loc, layout),
		UpdatedAt:     formatTime(o.UpdatedAt, loc, layout),
		Items:         make([]ItemView, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, ItemView{
			ProductID: it.ProductID,
			Name:      it.Name,
			Slug:      it.Slug,
			Thumbnail: it.Thumbnail,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal,
		})
	}
	return v
}

func formatTime(t time.Time, loc *time.Location, layout string) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(layout)
}
