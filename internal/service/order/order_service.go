package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"marketplace/internal/events"
	"marketplace/internal/model"
	"marketplace/internal/monitor"
	"marketplace/internal/repository"
	"marketplace/internal/service/attribution"
	"marketplace/pkg/log"
	"marketplace/pkg/snowflake"
	"marketplace/pkg/utils"
)

// NumberGenerator issues order numbers
type NumberGenerator interface {
	NextNumber(prefix string) string
}

// ItemInput is one checkout line
type ItemInput struct {
	ProductID   uint64
	ProductName string
	VendorID    uint64
	Quantity    int
	UnitPrice   decimal.Decimal
}

// PlaceOrderInput is the cart snapshot taken at checkout
type PlaceOrderInput struct {
	Items           []ItemInput
	ShippingName    string
	ShippingPhone   string
	ShippingAddress string
}

// TransitionRequest asks for a status change. A zero VendorID moves every
// live fulfillment of the order; vendors are always scoped to their own.
type TransitionRequest struct {
	OrderID  uint64
	VendorID uint64
	To       model.OrderStatus
}

// OrderService order service interface
type OrderService interface {
	// Place an order for the actor
	PlaceOrder(ctx context.Context, actor model.Actor, input *PlaceOrderInput) (*model.Order, error)

	// Move fulfillment status, all-or-nothing
	Transition(ctx context.Context, actor model.Actor, req TransitionRequest) (*model.Order, error)

	// Get order by ID
	GetOrder(ctx context.Context, actor model.Actor, id uint64) (*model.Order, error)

	// Get order by order number
	GetOrderByOrderNo(ctx context.Context, actor model.Actor, orderNo string) (*model.Order, error)

	// List the actor's own orders
	ListUserOrders(ctx context.Context, actor model.Actor, page, pageSize int) ([]*model.Order, int64, error)
}

// orderService order service implementation
type orderService struct {
	orderRepo  repository.OrderRepository
	vendorRepo repository.VendorRepository
	numbers    NumberGenerator
	prefix     string
	publisher  events.Publisher
	views      attribution.ViewCache
	metrics    *monitor.Metrics
	now        func() time.Time
}

// NewOrderService creates an order service. views and metrics may be nil.
func NewOrderService(
	orderRepo repository.OrderRepository,
	vendorRepo repository.VendorRepository,
	numbers NumberGenerator,
	prefix string,
	publisher events.Publisher,
	views attribution.ViewCache,
	metrics *monitor.Metrics,
) OrderService {
	return &orderService{
		orderRepo:  orderRepo,
		vendorRepo: vendorRepo,
		numbers:    numbers,
		prefix:     prefix,
		publisher:  publisher,
		views:      views,
		metrics:    metrics,
		now:        time.Now,
	}
}

// PlaceOrder creates an order with one pending fulfillment per vendor
func (s *orderService) PlaceOrder(ctx context.Context, actor model.Actor, input *PlaceOrderInput) (order *model.Order, err error) {
	ctx, span := monitor.StartSpan(ctx, "order.PlaceOrder", attribute.Int64("user.id", int64(actor.UserID)))
	defer func() {
		monitor.EndSpan(span, err)
		s.metrics.RecordOrderPlaced(err)
	}()

	if actor.UserID == 0 {
		return nil, utils.ErrUnauthorized
	}
	if err := validatePlaceOrder(input); err != nil {
		return nil, err
	}

	order = &model.Order{
		UserID:          actor.UserID,
		Status:          model.OrderStatusPending,
		ShippingName:    strings.TrimSpace(input.ShippingName),
		ShippingPhone:   strings.TrimSpace(input.ShippingPhone),
		ShippingAddress: strings.TrimSpace(input.ShippingAddress),
		CreatedAt:       s.now(),
	}
	for _, in := range input.Items {
		item := model.OrderItem{
			ProductID:   in.ProductID,
			ProductName: in.ProductName,
			VendorID:    in.VendorID,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice.Round(2),
		}
		item.LineTotal = item.ComputeLineTotal()
		order.Items = append(order.Items, item)
	}
	if err := s.checkVendors(ctx, order.VendorIDs()); err != nil {
		return nil, err
	}
	order.TotalAmount = order.ComputeTotal()
	order.OrderNo = s.numbers.NextNumber(s.prefix)

	if err := s.orderRepo.Create(ctx, order); err != nil {
		log.WithFields(map[string]interface{}{
			"user_id":  actor.UserID,
			"order_no": order.OrderNo,
			"error":    err.Error(),
		}).Error("Failed to create order")
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, utils.WrapError(err, utils.CodeConflict, "order number already taken")
		}
		return nil, utils.Unavailable(err, "failed to create order")
	}

	log.WithFields(map[string]interface{}{
		"order_no": order.OrderNo,
		"user_id":  order.UserID,
		"vendors":  len(order.Fulfillments),
		"total":    order.TotalAmount.String(),
	}).Info("Order placed")

	s.publish(ctx, events.OrderPlaced, events.OrderPlacedPayload{
		OrderID:   order.ID,
		OrderNo:   order.OrderNo,
		UserID:    order.UserID,
		VendorIDs: order.VendorIDs(),
		Total:     order.TotalAmount.StringFixed(2),
	})
	return order, nil
}

func validatePlaceOrder(input *PlaceOrderInput) error {
	if input == nil || len(input.Items) == 0 {
		return utils.Errorf(utils.CodeInvalidParam, "order must contain at least one item")
	}
	for i, item := range input.Items {
		switch {
		case item.ProductID == 0:
			return utils.Errorf(utils.CodeInvalidParam, "item %d: product is required", i)
		case item.VendorID == 0:
			return utils.Errorf(utils.CodeInvalidParam, "item %d: vendor is required", i)
		case item.Quantity <= 0:
			return utils.Errorf(utils.CodeInvalidParam, "item %d: quantity must be positive", i)
		case item.UnitPrice.IsNegative():
			return utils.Errorf(utils.CodeInvalidParam, "item %d: unit price must not be negative", i)
		}
	}
	if strings.TrimSpace(input.ShippingName) == "" ||
		strings.TrimSpace(input.ShippingPhone) == "" ||
		strings.TrimSpace(input.ShippingAddress) == "" {
		return utils.Errorf(utils.CodeInvalidParam, "shipping name, phone and address are required")
	}
	return nil
}

// checkVendors requires every vendor to exist and be approved
func (s *orderService) checkVendors(ctx context.Context, ids []uint64) error {
	vendors, err := s.vendorRepo.GetByIDs(ctx, ids)
	if err != nil {
		return utils.Unavailable(err, "failed to load vendors")
	}
	byID := make(map[uint64]*model.Vendor, len(vendors))
	for _, v := range vendors {
		byID[v.ID] = v
	}
	for _, id := range ids {
		v, ok := byID[id]
		if !ok {
			return utils.Errorf(utils.CodeVendorNotFound, "vendor %d not found", id)
		}
		if !v.IsApproved() {
			return utils.Errorf(utils.CodeVendorInactive, "vendor %d is not approved", id)
		}
	}
	return nil
}

// Transition applies req with an optimistic check on every affected
// fulfillment. A lost race is re-read and retried once.
func (s *orderService) Transition(ctx context.Context, actor model.Actor, req TransitionRequest) (order *model.Order, err error) {
	ctx, span := monitor.StartSpan(ctx, "order.Transition",
		attribute.Int64("order.id", int64(req.OrderID)),
		attribute.Int64("vendor.id", int64(req.VendorID)),
		attribute.String("order.to", string(req.To)),
		attribute.String("actor.role", string(actor.Role)),
	)
	defer func() {
		monitor.EndSpan(span, err)
		s.metrics.RecordTransition(string(req.To), string(actor.Role), err)
	}()

	if !req.To.Valid() {
		return nil, utils.Errorf(utils.CodeInvalidParam, "unknown status %q", req.To)
	}

	for attempt := 0; ; attempt++ {
		order, err = s.loadOrder(ctx, req.OrderID)
		if err != nil {
			return nil, err
		}
		changes, err := planTransition(actor, order, req)
		if err != nil {
			return nil, err
		}

		now := s.now()
		rollup, err := s.orderRepo.ApplyTransitions(ctx, order.ID, changes, now)
		if err == nil {
			s.afterTransition(ctx, actor, order, changes, rollup, now)
			return order, nil
		}
		if !errors.Is(err, repository.ErrPredicateFailed) {
			log.WithFields(map[string]interface{}{
				"order_id": order.ID,
				"to":       req.To,
				"error":    err.Error(),
			}).Error("Failed to apply transition")
			return nil, utils.Unavailable(err, "failed to apply transition")
		}
		if attempt > 0 {
			return nil, utils.WrapError(err, utils.CodeConflict, "order was modified concurrently")
		}

		s.metrics.RecordTransitionRetry()
		log.WithFields(map[string]interface{}{
			"order_id": order.ID,
			"to":       req.To,
		}).Warn("Fulfillment changed concurrently, retrying")
	}
}

// planTransition turns req into per-vendor changes, checking each against
// the state machine for the role the actor plays on this order.
func planTransition(actor model.Actor, order *model.Order, req TransitionRequest) ([]repository.FulfillmentChange, error) {
	role := actor.Role
	vendorID := req.VendorID

	switch {
	case actor.IsAdmin():
	case actor.IsVendor() && order.UserID == actor.UserID && order.FulfillmentFor(actor.VendorID) == nil:
		// a vendor buying from other vendors acts as the customer
		role = model.RoleCustomer
	case actor.IsVendor():
		if actor.VendorID == 0 || (vendorID != 0 && vendorID != actor.VendorID) {
			return nil, utils.ErrForbidden
		}
		vendorID = actor.VendorID
	case actor.IsCustomer():
		if order.UserID != actor.UserID {
			return nil, utils.ErrForbidden
		}
	default:
		return nil, utils.ErrUnauthorized
	}

	if vendorID != 0 {
		f := order.FulfillmentFor(vendorID)
		if f == nil {
			return nil, utils.ErrOrderNotFound
		}
		if err := CheckTransition(f.Status, req.To, role); err != nil {
			return nil, err
		}
		return []repository.FulfillmentChange{{VendorID: vendorID, From: f.Status, To: req.To}}, nil
	}

	var changes []repository.FulfillmentChange
	for _, f := range order.Fulfillments {
		if f.Status == req.To || f.Status == model.OrderStatusCancelled {
			continue
		}
		if err := CheckTransition(f.Status, req.To, role); err != nil {
			return nil, err
		}
		changes = append(changes, repository.FulfillmentChange{VendorID: f.VendorID, From: f.Status, To: req.To})
	}
	if len(changes) == 0 {
		return nil, utils.Errorf(utils.CodeInvalidTransition, "status is already %s", req.To)
	}
	return changes, nil
}

// afterTransition mirrors the committed changes onto order, drops the
// cached vendor views and emits the transition event.
func (s *orderService) afterTransition(ctx context.Context, actor model.Actor, order *model.Order, changes []repository.FulfillmentChange, rollup model.OrderStatus, at time.Time) {
	from := order.Status
	vendorIDs := make([]uint64, 0, len(changes))
	for _, c := range changes {
		vendorIDs = append(vendorIDs, c.VendorID)
		f := order.FulfillmentFor(c.VendorID)
		if f == nil {
			continue
		}
		f.Status = c.To
		f.UpdatedAt = at
		stamp := at
		switch c.To {
		case model.OrderStatusShipped:
			f.ShippedAt = &stamp
		case model.OrderStatusCompleted:
			f.CompletedAt = &stamp
		case model.OrderStatusCancelled:
			f.CancelledAt = &stamp
		}
	}
	order.Status = rollup
	order.UpdatedAt = at

	if s.views != nil {
		keys := make([]string, 0, len(order.Fulfillments))
		for _, f := range order.Fulfillments {
			keys = append(keys, attribution.CacheKey(order.ID, f.VendorID))
		}
		if err := s.views.Delete(ctx, keys...); err != nil {
			log.WithFields(map[string]interface{}{
				"order_id": order.ID,
				"error":    err.Error(),
			}).Warn("Failed to drop cached vendor views")
		}
	}

	log.WithFields(map[string]interface{}{
		"order_no":   order.OrderNo,
		"vendor_ids": vendorIDs,
		"to":         changes[0].To,
		"rollup":     rollup,
		"actor_id":   actor.UserID,
		"actor_role": actor.Role,
	}).Info("Order transition accepted")

	s.publish(ctx, events.OrderTransitioned, events.OrderTransitionedPayload{
		OrderID:   order.ID,
		OrderNo:   order.OrderNo,
		UserID:    order.UserID,
		VendorIDs: vendorIDs,
		From:      string(from),
		To:        string(changes[0].To),
		Rollup:    string(rollup),
		ActorID:   actor.UserID,
		ActorRole: string(actor.Role),
	})
}

// publish emits an order event. Delivery is best effort: the state change
// is already committed.
func (s *orderService) publish(ctx context.Context, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.TopicOrders, eventType, payload); err != nil {
		log.WithContext(ctx).WithFields(map[string]interface{}{
			"event": eventType,
			"error": err.Error(),
		}).Error("Failed to publish order event")
	}
}

func (s *orderService) loadOrder(ctx context.Context, id uint64) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.ErrOrderNotFound
	}
	if err != nil {
		return nil, utils.Unavailable(err, "failed to load order")
	}
	return order, nil
}

func canView(actor model.Actor, order *model.Order) bool {
	return actor.IsAdmin() || order.UserID == actor.UserID
}

// GetOrder gets an order visible to its purchaser and to admins
func (s *orderService) GetOrder(ctx context.Context, actor model.Actor, id uint64) (*model.Order, error) {
	order, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, order) {
		return nil, utils.ErrForbidden
	}
	return order, nil
}

// GetOrderByOrderNo gets an order by order number. Numbers this service
// could not have issued are rejected without a store lookup.
func (s *orderService) GetOrderByOrderNo(ctx context.Context, actor model.Actor, orderNo string) (*model.Order, error) {
	if _, err := snowflake.ParseNumber(s.prefix, orderNo); err != nil {
		return nil, utils.ErrOrderNotFound
	}
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.ErrOrderNotFound
	}
	if err != nil {
		return nil, utils.Unavailable(err, "failed to load order")
	}
	if !canView(actor, order) {
		return nil, utils.ErrForbidden
	}
	return order, nil
}

// ListUserOrders lists the actor's orders
func (s *orderService) ListUserOrders(ctx context.Context, actor model.Actor, page, pageSize int) ([]*model.Order, int64, error) {
	if actor.UserID == 0 {
		return nil, 0, utils.ErrUnauthorized
	}
	orders, total, err := s.orderRepo.ListUserOrders(ctx, actor.UserID, page, pageSize)
	if err != nil {
		return nil, 0, utils.Unavailable(err, "failed to list orders")
	}
	return orders, total, nil
}
