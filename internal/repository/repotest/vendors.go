package repotest

import (
	"context"
	"sort"
	"time"

	"marketplace/internal/model"
	"marketplace/internal/repository"
)

type vendorRepo struct{ s *Store }

func (s *Store) vendorCopy(v *model.Vendor) *model.Vendor {
	out := *v
	out.Shop = nil
	out.Badges = nil
	if shop, ok := s.shops[v.ID]; ok {
		c := *shop
		out.Shop = &c
	}
	for _, b := range s.badges {
		if b.VendorID == v.ID {
			out.Badges = append(out.Badges, *b)
		}
	}
	return &out
}

func (r *vendorRepo) Create(ctx context.Context, vendor *model.Vendor) error {
	s := r.s
	if err := s.enter("Vendors.Create"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	for _, v := range s.vendors {
		if v.UserID == vendor.UserID {
			return repository.ErrDuplicate
		}
	}
	vendor.ID = s.nextID()
	if vendor.CreatedAt.IsZero() {
		vendor.CreatedAt = s.now()
	}
	vendor.UpdatedAt = vendor.CreatedAt
	if vendor.Shop != nil {
		vendor.Shop.ID = s.nextID()
		vendor.Shop.VendorID = vendor.ID
		shop := *vendor.Shop
		s.shops[vendor.ID] = &shop
	}
	stored := *vendor
	stored.Shop = nil
	stored.Badges = nil
	s.vendors[vendor.ID] = &stored
	return nil
}

func (r *vendorRepo) GetByID(ctx context.Context, id uint64) (*model.Vendor, error) {
	s := r.s
	if err := s.enter("Vendors.GetByID"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	v, ok := s.vendors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.vendorCopy(v), nil
}

func (r *vendorRepo) GetByUserID(ctx context.Context, userID uint64) (*model.Vendor, error) {
	s := r.s
	if err := s.enter("Vendors.GetByUserID"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	for _, v := range s.vendors {
		if v.UserID == userID {
			return s.vendorCopy(v), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *vendorRepo) GetByIDs(ctx context.Context, ids []uint64) ([]*model.Vendor, error) {
	s := r.s
	if err := s.enter("Vendors.GetByIDs"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.Vendor
	for _, id := range ids {
		if v, ok := s.vendors[id]; ok {
			out = append(out, s.vendorCopy(v))
		}
	}
	return out, nil
}

func (r *vendorRepo) List(ctx context.Context, status model.VendorStatus, pageNum, pageSize int) ([]*model.Vendor, int64, error) {
	s := r.s
	if err := s.enter("Vendors.List"); err != nil {
		s.mu.Unlock()
		return nil, 0, err
	}
	defer s.mu.Unlock()
	var all []*model.Vendor
	for _, v := range s.vendors {
		if status == "" || v.Status == status {
			all = append(all, s.vendorCopy(v))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	start, end := page(len(all), pageNum, pageSize)
	return all[start:end], int64(len(all)), nil
}

func (r *vendorRepo) ListApprovedIDs(ctx context.Context) ([]uint64, error) {
	s := r.s
	if err := s.enter("Vendors.ListApprovedIDs"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	var ids []uint64
	for id, v := range s.vendors {
		if v.Status == model.VendorStatusApproved {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *vendorRepo) Approve(ctx context.Context, id, userID uint64, at time.Time) error {
	s := r.s
	if err := s.enter("Vendors.Approve"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	v, ok := s.vendors[id]
	if !ok || v.Status != model.VendorStatusPending {
		return repository.ErrPredicateFailed
	}
	v.Status = model.VendorStatusApproved
	t := at
	v.ApprovedAt = &t
	v.UpdatedAt = at
	if u, ok := s.users[userID]; ok && u.Role == model.RoleCustomer {
		u.Role = model.RoleVendor
		u.UpdatedAt = at
	}
	return nil
}

func (r *vendorRepo) Reject(ctx context.Context, id uint64, reason string, at time.Time) error {
	s := r.s
	if err := s.enter("Vendors.Reject"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	v, ok := s.vendors[id]
	if !ok || v.Status != model.VendorStatusPending {
		return repository.ErrPredicateFailed
	}
	v.Status = model.VendorStatusRejected
	v.RejectReason = &reason
	t := at
	v.RejectedAt = &t
	v.UpdatedAt = at
	return nil
}

func (r *vendorRepo) ChangePlan(ctx context.Context, history *model.VendorPlanHistory) error {
	s := r.s
	if err := s.enter("Vendors.ChangePlan"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	v, ok := s.vendors[history.VendorID]
	if !ok || v.Plan != history.FromPlan {
		return repository.ErrPredicateFailed
	}
	v.Plan = history.ToPlan
	v.CommissionRate = history.ToRate
	v.UpdatedAt = history.ChangedAt
	history.ID = s.nextID()
	stored := *history
	s.planHistory = append(s.planHistory, &stored)
	return nil
}

func (r *vendorRepo) ListPlanHistory(ctx context.Context, vendorID uint64) ([]*model.VendorPlanHistory, error) {
	s := r.s
	if err := s.enter("Vendors.ListPlanHistory"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.VendorPlanHistory
	for i := len(s.planHistory) - 1; i >= 0; i-- {
		if h := s.planHistory[i]; h.VendorID == vendorID {
			c := *h
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *vendorRepo) UpdateStats(ctx context.Context, id uint64, stats repository.VendorStats) error {
	s := r.s
	if err := s.enter("Vendors.UpdateStats"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	if v, ok := s.vendors[id]; ok {
		v.TotalSales = stats.TotalSales
		v.TotalOrders = stats.TotalOrders
		v.PerformanceScore = stats.PerformanceScore
		t := stats.ScoredAt
		v.ScoredAt = &t
	}
	return nil
}

type badgeRepo struct{ s *Store }

func (r *badgeRepo) Award(ctx context.Context, badge *model.VendorBadge) (bool, error) {
	s := r.s
	if err := s.enter("Badges.Award"); err != nil {
		s.mu.Unlock()
		return false, err
	}
	defer s.mu.Unlock()
	for _, b := range s.badges {
		if b.VendorID == badge.VendorID && b.BadgeType == badge.BadgeType {
			return false, nil
		}
	}
	badge.ID = s.nextID()
	if badge.EarnedAt.IsZero() {
		badge.EarnedAt = s.now()
	}
	stored := *badge
	s.badges = append(s.badges, &stored)
	return true, nil
}

func (r *badgeRepo) ListByVendor(ctx context.Context, vendorID uint64) ([]*model.VendorBadge, error) {
	s := r.s
	if err := s.enter("Badges.ListByVendor"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.VendorBadge
	for _, b := range s.badges {
		if b.VendorID == vendorID {
			c := *b
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *badgeRepo) ListAll(ctx context.Context) ([]*model.VendorBadge, error) {
	s := r.s
	if err := s.enter("Badges.ListAll"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	out := make([]*model.VendorBadge, 0, len(s.badges))
	for _, b := range s.badges {
		out = append(out, &model.VendorBadge{VendorID: b.VendorID, BadgeType: b.BadgeType})
	}
	return out, nil
}

type reviewRepo struct{ s *Store }

func (r *reviewRepo) Create(ctx context.Context, review *model.Review) error {
	s := r.s
	if err := s.enter("Reviews.Create"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	for _, rv := range s.reviews {
		if rv.OrderID == review.OrderID && rv.VendorID == review.VendorID {
			return repository.ErrDuplicate
		}
	}
	review.ID = s.nextID()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = s.now()
	}
	stored := *review
	s.reviews = append(s.reviews, &stored)
	return nil
}

func (r *reviewRepo) Stats(ctx context.Context, vendorID uint64, since time.Time) (*repository.RatingStats, error) {
	s := r.s
	if err := s.enter("Reviews.Stats"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	stats := &repository.RatingStats{}
	sum := 0
	for _, rv := range s.reviews {
		if rv.VendorID == vendorID && !rv.CreatedAt.Before(since) {
			stats.Count++
			sum += rv.Rating
		}
	}
	if stats.Count > 0 {
		stats.Average = float64(sum) / float64(stats.Count)
	}
	return stats, nil
}
