package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfillment status of an order or of one vendor's part of it
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// progress orders the non-cancelled states along the fulfillment path
var progress = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusShipped:    2,
	OrderStatusCompleted:  3,
}

// Valid reports whether s is a known status
func (s OrderStatus) Valid() bool {
	if s == OrderStatusCancelled {
		return true
	}
	_, ok := progress[s]
	return ok
}

// IsTerminal reports whether no further transition leaves s
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// RollupStatus derives the order level status from its per-vendor
// fulfillment statuses: cancelled when every part is cancelled, otherwise the
// least advanced status among the parts still live.
func RollupStatus(statuses []OrderStatus) OrderStatus {
	rollup := OrderStatusCancelled
	best := len(progress)
	for _, s := range statuses {
		rank, ok := progress[s]
		if !ok {
			continue
		}
		if rank < best {
			best = rank
			rollup = s
		}
	}
	return rollup
}

// Order order model
type Order struct {
	ID              uint64          `gorm:"primaryKey;autoIncrement;comment:order id" json:"id"`
	OrderNo         string          `gorm:"type:varchar(32);uniqueIndex;not null;comment:order number" json:"order_no"`
	UserID          uint64          `gorm:"type:bigint unsigned;not null;index;comment:purchaser user id" json:"user_id"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null;comment:sum of line totals" json:"total_amount"`
	Status          OrderStatus     `gorm:"type:varchar(20);not null;default:'pending';index;comment:rollup of fulfillment statuses" json:"status"`
	ShippingName    string          `gorm:"type:varchar(100);not null;comment:recipient name" json:"shipping_name"`
	ShippingPhone   string          `gorm:"type:varchar(20);not null;comment:recipient phone" json:"shipping_phone"`
	ShippingAddress string          `gorm:"type:varchar(500);not null;comment:recipient address" json:"shipping_address"`
	CreatedAt       time.Time       `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index;comment:created at" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP;comment:updated at" json:"updated_at"`

	Items        []OrderItem        `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Fulfillments []OrderFulfillment `gorm:"foreignKey:OrderID" json:"fulfillments,omitempty"`
}

// TableName set name
func (Order) TableName() string {
	return "orders"
}

// ComputeTotal sums the line totals of the loaded items
func (o *Order) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for i := range o.Items {
		total = total.Add(o.Items[i].ComputeLineTotal())
	}
	return total.Round(2)
}

// VendorIDs returns the distinct vendors of the loaded items in first-seen order
func (o *Order) VendorIDs() []uint64 {
	seen := make(map[uint64]bool)
	var ids []uint64
	for _, item := range o.Items {
		if !seen[item.VendorID] {
			seen[item.VendorID] = true
			ids = append(ids, item.VendorID)
		}
	}
	return ids
}

// FulfillmentFor returns the vendor's fulfillment row, if loaded
func (o *Order) FulfillmentFor(vendorID uint64) *OrderFulfillment {
	for i := range o.Fulfillments {
		if o.Fulfillments[i].VendorID == vendorID {
			return &o.Fulfillments[i]
		}
	}
	return nil
}

// OrderItem is one immutable line of an order, priced at purchase time
type OrderItem struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement;comment:item id" json:"id"`
	OrderID     uint64          `gorm:"type:bigint unsigned;not null;index;comment:order id" json:"order_id"`
	ProductID   uint64          `gorm:"type:bigint unsigned;not null;comment:product id" json:"product_id"`
	ProductName string          `gorm:"type:varchar(200);not null;default:'';comment:product name snapshot" json:"product_name"`
	VendorID    uint64          `gorm:"type:bigint unsigned;not null;index;comment:vendor id" json:"vendor_id"`
	Quantity    int             `gorm:"type:int;not null;comment:quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null;comment:unit price at purchase" json:"unit_price"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(12,2);not null;comment:quantity x unit price" json:"line_total"`
	CreatedAt   time.Time       `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;comment:created at" json:"created_at"`
}

// TableName set name
func (OrderItem) TableName() string {
	return "order_items"
}

// ComputeLineTotal returns quantity x unit price
func (i *OrderItem) ComputeLineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Round(2)
}

// OrderFulfillment tracks one vendor's progress on one order
type OrderFulfillment struct {
	ID          uint64      `gorm:"primaryKey;autoIncrement;comment:fulfillment id" json:"id"`
	OrderID     uint64      `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_fulfillment_order_vendor,priority:1;comment:order id" json:"order_id"`
	VendorID    uint64      `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_fulfillment_order_vendor,priority:2;index;comment:vendor id" json:"vendor_id"`
	Status      OrderStatus `gorm:"type:varchar(20);not null;default:'pending';index;comment:vendor part status" json:"status"`
	ShippedAt   *time.Time  `gorm:"type:timestamp;comment:shipped at" json:"shipped_at,omitempty"`
	CompletedAt *time.Time  `gorm:"type:timestamp;comment:completed at" json:"completed_at,omitempty"`
	CancelledAt *time.Time  `gorm:"type:timestamp;comment:cancelled at" json:"cancelled_at,omitempty"`
	CreatedAt   time.Time   `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;comment:created at" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP;comment:updated at" json:"updated_at"`
}

// TableName set name
func (OrderFulfillment) TableName() string {
	return "order_fulfillments"
}

// ShipDuration returns the time from order creation to shipment
func (f *OrderFulfillment) ShipDuration() (time.Duration, bool) {
	if f.ShippedAt == nil {
		return 0, false
	}
	return f.ShippedAt.Sub(f.CreatedAt), true
}
