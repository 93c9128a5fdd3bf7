package repository

import (
	"context"

	"gorm.io/gorm"

	"marketplace/internal/model"
)

// BadgeRepository badge ledger interface
type BadgeRepository interface {
	// Award inserts a badge, reporting false when the vendor already holds its type
	Award(ctx context.Context, badge *model.VendorBadge) (bool, error)

	// List badges of a vendor in earning order
	ListByVendor(ctx context.Context, vendorID uint64) ([]*model.VendorBadge, error)

	// ListAll returns every (vendor, type) pair held, used to warm lookup filters
	ListAll(ctx context.Context) ([]*model.VendorBadge, error)
}

// badgeRepository badge repository implementation
type badgeRepository struct {
	db *gorm.DB
}

// NewBadgeRepository creates a badge repository
func NewBadgeRepository(db *gorm.DB) BadgeRepository {
	return &badgeRepository{db: db}
}

// Award awards a badge
func (r *badgeRepository) Award(ctx context.Context, badge *model.VendorBadge) (bool, error) {
	err := translate(r.db.WithContext(ctx).Create(badge).Error)
	if err == ErrDuplicate {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListByVendor lists a vendor's badges
func (r *badgeRepository) ListByVendor(ctx context.Context, vendorID uint64) ([]*model.VendorBadge, error) {
	var badges []*model.VendorBadge
	err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("earned_at ASC, id ASC").
		Find(&badges).Error
	return badges, err
}

// ListAll lists every badge
func (r *badgeRepository) ListAll(ctx context.Context) ([]*model.VendorBadge, error) {
	var badges []*model.VendorBadge
	err := r.db.WithContext(ctx).
		Select("vendor_id", "badge_type").
		Find(&badges).Error
	return badges, err
}
