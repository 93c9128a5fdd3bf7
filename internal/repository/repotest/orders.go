package repotest

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"marketplace/internal/model"
	"marketplace/internal/repository"
)

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	s := r.s
	if err := s.enter("Users.Create"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	user.ID = s.nextID()
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	s := r.s
	if err := s.enter("Users.GetByID"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (r *userRepo) GetByIDs(ctx context.Context, ids []uint64) ([]*model.User, error) {
	s := r.s
	if err := s.enter("Users.GetByIDs"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *userRepo) ListByRole(ctx context.Context, role model.Role) ([]*model.User, error) {
	s := r.s
	if err := s.enter("Users.ListByRole"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.User
	for id := uint64(1); id <= s.lastID; id++ {
		if u, ok := s.users[id]; ok && u.Role == role && u.IsActive() {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

type orderRepo struct{ s *Store }

func (r *orderRepo) Create(ctx context.Context, order *model.Order) error {
	s := r.s
	if err := s.enter("Orders.Create"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.OrderNo == order.OrderNo {
			return repository.ErrDuplicate
		}
	}

	now := s.now()
	order.ID = s.nextID()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		order.Items[i].ID = s.nextID()
		order.Items[i].OrderID = order.ID
		s.items = append(s.items, order.Items[i])
	}
	order.Fulfillments = nil
	for _, vendorID := range order.VendorIDs() {
		f := model.OrderFulfillment{
			ID:        s.nextID(),
			OrderID:   order.ID,
			VendorID:  vendorID,
			Status:    model.OrderStatusPending,
			CreatedAt: order.CreatedAt,
			UpdatedAt: order.CreatedAt,
		}
		order.Fulfillments = append(order.Fulfillments, f)
		stored := f
		s.fulfillments = append(s.fulfillments, &stored)
	}

	stored := *order
	stored.Items = nil
	stored.Fulfillments = nil
	s.orders[order.ID] = &stored
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	s := r.s
	if err := s.enter("Orders.GetByID"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.orderCopy(o), nil
}

func (r *orderRepo) ListFulfillments(ctx context.Context, orderID uint64) ([]model.OrderFulfillment, error) {
	s := r.s
	if err := s.enter("Orders.ListFulfillments"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	rows := s.orderCopy(o).Fulfillments
	sort.Slice(rows, func(i, j int) bool { return rows[i].VendorID < rows[j].VendorID })
	return rows, nil
}

func (r *orderRepo) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	s := r.s
	if err := s.enter("Orders.GetByOrderNo"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.OrderNo == orderNo {
			return s.orderCopy(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *orderRepo) ApplyTransitions(ctx context.Context, orderID uint64, changes []repository.FulfillmentChange, at time.Time) (model.OrderStatus, error) {
	s := r.s
	if err := s.enter("Orders.ApplyTransitions"); err != nil {
		s.mu.Unlock()
		return "", err
	}
	defer s.mu.Unlock()

	// check every predicate first so a stale row leaves nothing applied
	targets := make([]*model.OrderFulfillment, len(changes))
	for i, c := range changes {
		for _, f := range s.fulfillments {
			if f.OrderID == orderID && f.VendorID == c.VendorID && f.Status == c.From {
				targets[i] = f
			}
		}
		if targets[i] == nil {
			return "", repository.ErrPredicateFailed
		}
	}
	for i, c := range changes {
		f := targets[i]
		f.Status = c.To
		f.UpdatedAt = at
		switch c.To {
		case model.OrderStatusShipped:
			t := at
			f.ShippedAt = &t
		case model.OrderStatusCompleted:
			t := at
			f.CompletedAt = &t
		case model.OrderStatusCancelled:
			t := at
			f.CancelledAt = &t
		}
	}

	var statuses []model.OrderStatus
	for _, f := range s.fulfillments {
		if f.OrderID == orderID {
			statuses = append(statuses, f.Status)
		}
	}
	rollup := model.RollupStatus(statuses)
	if o, ok := s.orders[orderID]; ok {
		o.Status = rollup
		o.UpdatedAt = at
	}
	return rollup, nil
}

func (r *orderRepo) ListUserOrders(ctx context.Context, userID uint64, pageNum, pageSize int) ([]*model.Order, int64, error) {
	s := r.s
	if err := s.enter("Orders.ListUserOrders"); err != nil {
		s.mu.Unlock()
		return nil, 0, err
	}
	defer s.mu.Unlock()
	var all []*model.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			all = append(all, s.orderCopy(o))
		}
	}
	sortByCreatedDesc(all)
	start, end := page(len(all), pageNum, pageSize)
	return all[start:end], int64(len(all)), nil
}

func (r *orderRepo) ListVendorOrders(ctx context.Context, vendorID uint64, status model.OrderStatus, pageNum, pageSize int) ([]*model.Order, int64, error) {
	s := r.s
	if err := s.enter("Orders.ListVendorOrders"); err != nil {
		s.mu.Unlock()
		return nil, 0, err
	}
	defer s.mu.Unlock()
	var all []*model.Order
	for _, f := range s.fulfillments {
		if f.VendorID != vendorID || (status != "" && f.Status != status) {
			continue
		}
		if o, ok := s.orders[f.OrderID]; ok {
			all = append(all, s.orderCopy(o))
		}
	}
	sortByCreatedDesc(all)
	start, end := page(len(all), pageNum, pageSize)
	return all[start:end], int64(len(all)), nil
}

func (r *orderRepo) FulfillmentStats(ctx context.Context, vendorID uint64, since time.Time) (*repository.FulfillmentStats, error) {
	s := r.s
	if err := s.enter("Orders.FulfillmentStats"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	stats := &repository.FulfillmentStats{TotalSales: decimal.Zero}
	var shipHours float64
	for _, f := range s.fulfillments {
		if f.VendorID != vendorID {
			continue
		}
		if f.Status != model.OrderStatusCancelled {
			stats.TotalOrders++
			for _, item := range s.items {
				if item.OrderID == f.OrderID && item.VendorID == vendorID {
					stats.TotalSales = stats.TotalSales.Add(item.ComputeLineTotal())
				}
			}
		}
		if f.CreatedAt.Before(since) {
			continue
		}
		if f.Status == model.OrderStatusCompleted {
			stats.CompletedOrders++
		}
		if d, ok := f.ShipDuration(); ok {
			stats.ShippedCount++
			shipHours += d.Hours()
		}
	}
	if stats.ShippedCount > 0 {
		stats.AvgShipHours = shipHours / float64(stats.ShippedCount)
	}
	return stats, nil
}
