package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"marketplace/internal/model"
)

// RatingStats summarises a vendor's reviews
type RatingStats struct {
	Count   int64
	Average float64
}

// ReviewRepository review repository interface
type ReviewRepository interface {
	// Create review, ErrDuplicate when the order was already reviewed for the vendor
	Create(ctx context.Context, review *model.Review) error

	// Rating stats of reviews created since the given time
	Stats(ctx context.Context, vendorID uint64, since time.Time) (*RatingStats, error)
}

type reviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository creates a review repository
func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

func (r *reviewRepository) Create(ctx context.Context, review *model.Review) error {
	return translate(r.db.WithContext(ctx).Create(review).Error)
}

func (r *reviewRepository) Stats(ctx context.Context, vendorID uint64, since time.Time) (*RatingStats, error) {
	var row struct {
		Count   int64
		Average *float64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Review{}).
		Select("COUNT(*) AS count, AVG(rating) AS average").
		Where("vendor_id = ? AND created_at >= ?", vendorID, since).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	stats := &RatingStats{Count: row.Count}
	if row.Average != nil {
		stats.Average = *row.Average
	}
	return stats, nil
}
