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

// VendorStats are the recomputed aggregates of a vendor
type VendorStats struct {
	TotalSales       decimal.Decimal
	TotalOrders      int64
	PerformanceScore decimal.Decimal
	ScoredAt         time.Time
}

// VendorRepository vendor repository interface
type VendorRepository interface {
	// Create vendor and its shop, ErrDuplicate when the user already owns one
	Create(ctx context.Context, vendor *model.Vendor) error

	// Get vendor by ID with shop and badges
	GetByID(ctx context.Context, id uint64) (*model.Vendor, error)

	// Get vendor by owning user
	GetByUserID(ctx context.Context, userID uint64) (*model.Vendor, error)

	// Get vendors by IDs
	GetByIDs(ctx context.Context, ids []uint64) ([]*model.Vendor, error)

	// List vendors, optionally filtered by status
	List(ctx context.Context, status model.VendorStatus, page, pageSize int) ([]*model.Vendor, int64, error)

	// List IDs of approved vendors
	ListApprovedIDs(ctx context.Context) ([]uint64, error)

	// Approve a pending vendor and promote its owner to the vendor role
	Approve(ctx context.Context, id, userID uint64, at time.Time) error

	// Reject a pending vendor
	Reject(ctx context.Context, id uint64, reason string, at time.Time) error

	// Change plan while it still equals the recorded from plan, appending history
	ChangePlan(ctx context.Context, history *model.VendorPlanHistory) error

	// List plan history, newest first
	ListPlanHistory(ctx context.Context, vendorID uint64) ([]*model.VendorPlanHistory, error)

	// Store recomputed aggregates
	UpdateStats(ctx context.Context, id uint64, stats VendorStats) error
}

// vendorRepository vendor repository implementation
type vendorRepository struct {
	db *gorm.DB
}

// NewVendorRepository creates a vendor repository
func NewVendorRepository(db *gorm.DB) VendorRepository {
	return &vendorRepository{db: db}
}

// Create creates a vendor
func (r *vendorRepository) Create(ctx context.Context, vendor *model.Vendor) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(vendor).Error; err != nil {
			return err
		}
		if vendor.Shop != nil {
			vendor.Shop.VendorID = vendor.ID
			if err := tx.Create(vendor.Shop).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return translate(err)
}

// GetByID gets a vendor by ID
func (r *vendorRepository) GetByID(ctx context.Context, id uint64) (*model.Vendor, error) {
	var vendor model.Vendor
	err := r.db.WithContext(ctx).
		Preload("Shop").
		Preload("Badges").
		Where("id = ?", id).
		First(&vendor).Error
	if err != nil {
		return nil, translate(err)
	}
	return &vendor, nil
}

// GetByUserID gets a vendor by its owner
func (r *vendorRepository) GetByUserID(ctx context.Context, userID uint64) (*model.Vendor, error) {
	var vendor model.Vendor
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&vendor).Error; err != nil {
		return nil, translate(err)
	}
	return &vendor, nil
}

// GetByIDs gets vendors by IDs
func (r *vendorRepository) GetByIDs(ctx context.Context, ids []uint64) ([]*model.Vendor, error) {
	var vendors []*model.Vendor
	if len(ids) == 0 {
		return vendors, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&vendors).Error
	return vendors, err
}

// List lists vendors
func (r *vendorRepository) List(ctx context.Context, status model.VendorStatus, page, pageSize int) ([]*model.Vendor, int64, error) {
	var vendors []*model.Vendor
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Vendor{})
	if status != "" {
		db = db.Where("status = ?", status)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("created_at DESC").
		Offset(offset(page, pageSize)).
		Limit(pageSize).
		Find(&vendors).Error
	return vendors, total, err
}

// ListApprovedIDs lists approved vendor IDs
func (r *vendorRepository) ListApprovedIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&model.Vendor{}).
		Where("status = ?", model.VendorStatusApproved).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// Approve approves a vendor
func (r *vendorRepository) Approve(ctx context.Context, id, userID uint64, at time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Vendor{}).
			Where("id = ? AND status = ?", id, model.VendorStatusPending).
			Updates(map[string]interface{}{
				"status":      model.VendorStatusApproved,
				"approved_at": at,
				"updated_at":  at,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrPredicateFailed
		}

		// admins keep their role when they also sell
		return tx.Model(&model.User{}).
			Where("id = ? AND role = ?", userID, model.RoleCustomer).
			Updates(map[string]interface{}{
				"role":       model.RoleVendor,
				"updated_at": at,
			}).Error
	})
	if errors.Is(err, ErrPredicateFailed) {
		return err
	}
	return translate(err)
}

// Reject rejects a vendor
func (r *vendorRepository) Reject(ctx context.Context, id uint64, reason string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.Vendor{}).
		Where("id = ? AND status = ?", id, model.VendorStatusPending).
		Updates(map[string]interface{}{
			"status":        model.VendorStatusRejected,
			"reject_reason": reason,
			"rejected_at":   at,
			"updated_at":    at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPredicateFailed
	}
	return nil
}

// ChangePlan changes a vendor plan
func (r *vendorRepository) ChangePlan(ctx context.Context, history *model.VendorPlanHistory) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Vendor{}).
			Where("id = ? AND plan = ?", history.VendorID, history.FromPlan).
			Updates(map[string]interface{}{
				"plan":            history.ToPlan,
				"commission_rate": history.ToRate,
				"updated_at":      history.ChangedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrPredicateFailed
		}
		return tx.Create(history).Error
	})
	if errors.Is(err, ErrPredicateFailed) {
		return err
	}
	return translate(err)
}

// ListPlanHistory lists plan history
func (r *vendorRepository) ListPlanHistory(ctx context.Context, vendorID uint64) ([]*model.VendorPlanHistory, error) {
	var history []*model.VendorPlanHistory
	err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("changed_at DESC, id DESC").
		Find(&history).Error
	return history, err
}

// UpdateStats updates vendor aggregates
func (r *vendorRepository) UpdateStats(ctx context.Context, id uint64, stats VendorStats) error {
	return r.db.WithContext(ctx).
		Model(&model.Vendor{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_sales":       stats.TotalSales,
			"total_orders":      stats.TotalOrders,
			"performance_score": stats.PerformanceScore,
			"scored_at":         stats.ScoredAt,
		}).Error
}
