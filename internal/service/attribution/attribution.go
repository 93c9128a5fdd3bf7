package attribution

import (
	"time"

	"github.com/shopspring/decimal"

	"marketplace/internal/model"
)

var hundred = decimal.NewFromInt(100)

// ShippingContact is the purchaser projection a vendor needs to ship
type ShippingContact struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// VendorView is one vendor's share of a multi-vendor order
type VendorView struct {
	OrderID        uint64            `json:"order_id"`
	OrderNo        string            `json:"order_no"`
	VendorID       uint64            `json:"vendor_id"`
	Status         model.OrderStatus `json:"status"`
	OrderStatus    model.OrderStatus `json:"order_status"`
	Items          []model.OrderItem `json:"items"`
	Subtotal       decimal.Decimal   `json:"subtotal"`
	CommissionRate decimal.Decimal   `json:"commission_rate"`
	Commission     decimal.Decimal   `json:"commission"`
	NetPayout      decimal.Decimal   `json:"net_payout"`
	Shipping       ShippingContact   `json:"shipping"`
	ShippedAt      *time.Time        `json:"shipped_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Attribute derives the vendor's view of order. It reports false when the
// order holds no item of the vendor, in which case the order is not visible
// to that vendor at all. The order is never modified.
func Attribute(order *model.Order, vendorID uint64, commissionRate decimal.Decimal) (*VendorView, bool) {
	var items []model.OrderItem
	subtotal := decimal.Zero
	for _, item := range order.Items {
		if item.VendorID != vendorID {
			continue
		}
		items = append(items, item)
		subtotal = subtotal.Add(item.ComputeLineTotal())
	}
	if len(items) == 0 {
		return nil, false
	}

	subtotal = subtotal.Round(2)
	commission := subtotal.Mul(commissionRate).Div(hundred).Round(2)

	view := &VendorView{
		OrderID:        order.ID,
		OrderNo:        order.OrderNo,
		VendorID:       vendorID,
		Status:         model.OrderStatusPending,
		OrderStatus:    order.Status,
		Items:          items,
		Subtotal:       subtotal,
		CommissionRate: commissionRate,
		Commission:     commission,
		NetPayout:      subtotal.Sub(commission),
		Shipping: ShippingContact{
			Name:    order.ShippingName,
			Phone:   order.ShippingPhone,
			Address: order.ShippingAddress,
		},
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
	if f := order.FulfillmentFor(vendorID); f != nil {
		view.Status = f.Status
		view.ShippedAt = f.ShippedAt
		view.CompletedAt = f.CompletedAt
		if f.UpdatedAt.After(view.UpdatedAt) {
			view.UpdatedAt = f.UpdatedAt
		}
	}
	return view, true
}
