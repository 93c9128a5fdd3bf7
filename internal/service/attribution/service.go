package attribution

import (
	"context"
	"errors"
	"fmt"

	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/pkg/log"
	"marketplace/pkg/utils"
)

// ViewCache stores computed vendor views
type ViewCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

// CacheKey is the cache key of a vendor's view of an order
func CacheKey(orderID, vendorID uint64) string {
	return fmt.Sprintf("%d:%d", orderID, vendorID)
}

// Service serves vendor views of orders
type Service interface {
	// GetVendorOrder returns the vendor's view of one order
	GetVendorOrder(ctx context.Context, actor model.Actor, vendorID, orderID uint64) (*VendorView, error)

	// ListVendorOrders lists the vendor's views, newest order first
	ListVendorOrders(ctx context.Context, actor model.Actor, vendorID uint64, status model.OrderStatus, page, pageSize int) ([]*VendorView, int64, error)
}

type service struct {
	orderRepo  repository.OrderRepository
	vendorRepo repository.VendorRepository
	cache      ViewCache
}

// NewService creates the attribution service. cache may be nil.
func NewService(orderRepo repository.OrderRepository, vendorRepo repository.VendorRepository, cache ViewCache) Service {
	return &service{
		orderRepo:  orderRepo,
		vendorRepo: vendorRepo,
		cache:      cache,
	}
}

func (s *service) authorizedVendor(ctx context.Context, actor model.Actor, vendorID uint64) (*model.Vendor, error) {
	if !actor.IsAdmin() && !actor.ActsFor(vendorID) {
		return nil, utils.ErrForbidden
	}
	vendor, err := s.vendorRepo.GetByID(ctx, vendorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.ErrVendorNotFound
	}
	if err != nil {
		return nil, utils.Unavailable(err, "failed to load vendor")
	}
	return vendor, nil
}

func (s *service) GetVendorOrder(ctx context.Context, actor model.Actor, vendorID, orderID uint64) (*VendorView, error) {
	vendor, err := s.authorizedVendor(ctx, actor, vendorID)
	if err != nil {
		return nil, err
	}

	key := CacheKey(orderID, vendorID)
	if s.cache != nil {
		var cached VendorView
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.WithFields(map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			}).Warn("Vendor view cache read failed")
		}
		if found && s.fresh(ctx, &cached, vendor) {
			return &cached, nil
		}
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.ErrOrderNotFound
	}
	if err != nil {
		return nil, utils.Unavailable(err, "failed to load order")
	}

	view, ok := Attribute(order, vendorID, vendor.CommissionRate)
	if !ok {
		return nil, utils.ErrOrderNotFound
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, view); err != nil {
			log.WithFields(map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			}).Warn("Vendor view cache write failed")
		}
	}
	return view, nil
}

// fresh reports whether a cached view still matches the vendor's rate and
// the order's fulfillment rows. A transition that lands between a reload
// and the cache write leaves a view that fails this check.
func (s *service) fresh(ctx context.Context, cached *VendorView, vendor *model.Vendor) bool {
	if !cached.CommissionRate.Equal(vendor.CommissionRate) {
		return false
	}
	rows, err := s.orderRepo.ListFulfillments(ctx, cached.OrderID)
	if err != nil || len(rows) == 0 {
		return false
	}
	statuses := make([]model.OrderStatus, 0, len(rows))
	own := false
	for _, row := range rows {
		statuses = append(statuses, row.Status)
		if row.VendorID == vendor.ID {
			own = row.Status == cached.Status
		}
	}
	return own && model.RollupStatus(statuses) == cached.OrderStatus
}

func (s *service) ListVendorOrders(ctx context.Context, actor model.Actor, vendorID uint64, status model.OrderStatus, page, pageSize int) ([]*VendorView, int64, error) {
	vendor, err := s.authorizedVendor(ctx, actor, vendorID)
	if err != nil {
		return nil, 0, err
	}
	if status != "" && !status.Valid() {
		return nil, 0, utils.Errorf(utils.CodeInvalidParam, "unknown status %q", status)
	}

	orders, total, err := s.orderRepo.ListVendorOrders(ctx, vendorID, status, page, pageSize)
	if err != nil {
		return nil, 0, utils.Unavailable(err, "failed to list vendor orders")
	}

	views := make([]*VendorView, 0, len(orders))
	for _, order := range orders {
		// a fulfillment row without items is skipped rather than shown empty
		if view, ok := Attribute(order, vendorID, vendor.CommissionRate); ok {
			views = append(views, view)
		}
	}
	return views, total, nil
}
