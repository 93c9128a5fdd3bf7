package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketplace/internal/model"
)

// FulfillmentChange moves one vendor's part of an order from one status to another
type FulfillmentChange struct {
	VendorID uint64
	From     model.OrderStatus
	To       model.OrderStatus
}

// FulfillmentStats aggregates a vendor's fulfillment rows
type FulfillmentStats struct {
	TotalSales      decimal.Decimal
	TotalOrders     int64
	CompletedOrders int64
	ShippedCount    int64
	AvgShipHours    float64
}

// OrderRepository order repository interface
type OrderRepository interface {
	// Create order with its items and one pending fulfillment per vendor
	Create(ctx context.Context, order *model.Order) error

	// Get order by ID with items and fulfillments
	GetByID(ctx context.Context, id uint64) (*model.Order, error)

	// Get order by order number
	GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error)

	// List the order's fulfillment rows without items
	ListFulfillments(ctx context.Context, orderID uint64) ([]model.OrderFulfillment, error)

	// Apply fulfillment changes atomically and refresh the order rollup status
	ApplyTransitions(ctx context.Context, orderID uint64, changes []FulfillmentChange, at time.Time) (model.OrderStatus, error)

	// List user orders
	ListUserOrders(ctx context.Context, userID uint64, page, pageSize int) ([]*model.Order, int64, error)

	// List orders holding a fulfillment row for the vendor
	ListVendorOrders(ctx context.Context, vendorID uint64, status model.OrderStatus, page, pageSize int) ([]*model.Order, int64, error)

	// Aggregate a vendor's sales and, since the given time, its shipping record
	FulfillmentStats(ctx context.Context, vendorID uint64, since time.Time) (*FulfillmentStats, error)
}

// orderRepository order repository implementation
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates an order repository
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create creates an order
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
			return err
		}

		for i := range order.Items {
			order.Items[i].OrderID = order.ID
		}
		if len(order.Items) > 0 {
			if err := tx.Create(&order.Items).Error; err != nil {
				return err
			}
		}

		order.Fulfillments = order.Fulfillments[:0]
		for _, vendorID := range order.VendorIDs() {
			order.Fulfillments = append(order.Fulfillments, model.OrderFulfillment{
				OrderID:  order.ID,
				VendorID: vendorID,
				Status:   model.OrderStatusPending,
			})
		}
		if len(order.Fulfillments) > 0 {
			if err := tx.Create(&order.Fulfillments).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return translate(err)
}

// GetByID gets an order by ID
func (r *orderRepository) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Fulfillments").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// ListFulfillments lists an order's fulfillment rows by vendor
func (r *orderRepository) ListFulfillments(ctx context.Context, orderID uint64) ([]model.OrderFulfillment, error) {
	var rows []model.OrderFulfillment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("vendor_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

// GetByOrderNo gets an order by order number
func (r *orderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Fulfillments").
		Where("order_no = ?", orderNo).
		First(&order).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// ApplyTransitions updates every listed fulfillment only while it still holds
// its expected status. One stale row rolls back the whole set.
func (r *orderRepository) ApplyTransitions(ctx context.Context, orderID uint64, changes []FulfillmentChange, at time.Time) (model.OrderStatus, error) {
	var rollup model.OrderStatus
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range changes {
			updates := map[string]interface{}{
				"status":     c.To,
				"updated_at": at,
			}
			switch c.To {
			case model.OrderStatusShipped:
				updates["shipped_at"] = at
			case model.OrderStatusCompleted:
				updates["completed_at"] = at
			case model.OrderStatusCancelled:
				updates["cancelled_at"] = at
			}

			result := tx.Model(&model.OrderFulfillment{}).
				Where("order_id = ? AND vendor_id = ? AND status = ?", orderID, c.VendorID, c.From).
				Updates(updates)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrPredicateFailed
			}
		}

		var statuses []model.OrderStatus
		if err := tx.Model(&model.OrderFulfillment{}).
			Where("order_id = ?", orderID).
			Pluck("status", &statuses).Error; err != nil {
			return err
		}
		rollup = model.RollupStatus(statuses)

		return tx.Model(&model.Order{}).
			Where("id = ?", orderID).
			Updates(map[string]interface{}{
				"status":     rollup,
				"updated_at": at,
			}).Error
	})
	if err != nil {
		if errors.Is(err, ErrPredicateFailed) {
			return "", err
		}
		return "", translate(err)
	}
	return rollup, nil
}

// ListUserOrders lists user orders
func (r *orderRepository) ListUserOrders(ctx context.Context, userID uint64, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Preload("Items").
		Preload("Fulfillments").
		Order("created_at DESC").
		Offset(offset(page, pageSize)).
		Limit(pageSize).
		Find(&orders).Error
	return orders, total, err
}

// ListVendorOrders lists orders in which the vendor has a fulfillment row,
// optionally filtered by that row's status
func (r *orderRepository) ListVendorOrders(ctx context.Context, vendorID uint64, status model.OrderStatus, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	sub := r.db.Model(&model.OrderFulfillment{}).Select("order_id").Where("vendor_id = ?", vendorID)
	if status != "" {
		sub = sub.Where("status = ?", status)
	}

	db := r.db.WithContext(ctx).Model(&model.Order{}).Where("id IN (?)", sub)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Fulfillments").
		Order("created_at DESC").
		Offset(offset(page, pageSize)).
		Limit(pageSize).
		Find(&orders).Error
	return orders, total, err
}

// FulfillmentStats aggregates sales over all non-cancelled fulfillments and
// the shipping record of fulfillments created since the given time
func (r *orderRepository) FulfillmentStats(ctx context.Context, vendorID uint64, since time.Time) (*FulfillmentStats, error) {
	var sales struct {
		TotalSales  decimal.Decimal
		TotalOrders int64
	}
	err := r.db.WithContext(ctx).
		Table("order_items AS i").
		Select("COALESCE(SUM(i.line_total), 0) AS total_sales, COUNT(DISTINCT i.order_id) AS total_orders").
		Joins("JOIN order_fulfillments AS f ON f.order_id = i.order_id AND f.vendor_id = i.vendor_id").
		Where("i.vendor_id = ? AND f.status <> ?", vendorID, model.OrderStatusCancelled).
		Scan(&sales).Error
	if err != nil {
		return nil, err
	}

	var window struct {
		CompletedOrders int64
		ShippedCount    int64
		AvgShipHours    *float64
	}
	err = r.db.WithContext(ctx).
		Model(&model.OrderFulfillment{}).
		Select("COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed_orders, "+
			"COUNT(shipped_at) AS shipped_count, "+
			"AVG(TIMESTAMPDIFF(SECOND, created_at, shipped_at)) / 3600 AS avg_ship_hours", model.OrderStatusCompleted).
		Where("vendor_id = ? AND created_at >= ?", vendorID, since).
		Scan(&window).Error
	if err != nil {
		return nil, err
	}

	stats := &FulfillmentStats{
		TotalSales:      sales.TotalSales,
		TotalOrders:     sales.TotalOrders,
		CompletedOrders: window.CompletedOrders,
		ShippedCount:    window.ShippedCount,
	}
	if window.AvgShipHours != nil {
		stats.AvgShipHours = *window.AvgShipHours
	}
	return stats, nil
}
