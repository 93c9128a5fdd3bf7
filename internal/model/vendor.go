package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// VendorStatus is the application state of a vendor
type VendorStatus string

const (
	VendorStatusPending  VendorStatus = "pending"
	VendorStatusApproved VendorStatus = "approved"
	VendorStatusRejected VendorStatus = "rejected"
)

// BusinessType vendor business type const
const (
	BusinessTypeIndividual  = "individual"
	BusinessTypeCompany     = "company"
	BusinessTypeAssociation = "association"
)

// Plan is a vendor's commission tier
type Plan string

const (
	PlanBasic   Plan = "basic"
	PlanPremium Plan = "premium"
	PlanGolden  Plan = "golden"
)

var planRank = map[Plan]int{
	PlanBasic:   0,
	PlanPremium: 1,
	PlanGolden:  2,
}

// Valid reports whether p is a known plan
func (p Plan) Valid() bool {
	_, ok := planRank[p]
	return ok
}

// Rank orders plans basic < premium < golden
func (p Plan) Rank() int {
	return planRank[p]
}

// Vendor vendor profile, at most one per user
type Vendor struct {
	ID               uint64          `gorm:"primaryKey;autoIncrement;comment:vendor id" json:"id"`
	UserID           uint64          `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_vendors_user;comment:owning user id" json:"user_id"`
	BusinessName     string          `gorm:"type:varchar(200);not null;comment:business name" json:"business_name"`
	BusinessType     string          `gorm:"type:varchar(20);not null;comment:individual, company or association" json:"business_type"`
	Description      *string         `gorm:"type:text;comment:description" json:"description,omitempty"`
	Status           VendorStatus    `gorm:"type:varchar(20);not null;default:'pending';index;comment:application status" json:"status"`
	Plan             Plan            `gorm:"type:varchar(20);not null;default:'basic';comment:plan tier" json:"plan"`
	CommissionRate   decimal.Decimal `gorm:"type:decimal(5,2);not null;comment:commission percentage" json:"commission_rate"`
	TotalSales       decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0;comment:aggregated sales" json:"total_sales"`
	TotalOrders      int64           `gorm:"type:bigint;not null;default:0;comment:aggregated orders" json:"total_orders"`
	PerformanceScore decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0;comment:0-100 score" json:"performance_score"`
	RejectReason     *string         `gorm:"type:varchar(500);comment:reject reason" json:"reject_reason,omitempty"`
	ApprovedAt       *time.Time      `gorm:"type:timestamp;comment:approved at" json:"approved_at,omitempty"`
	RejectedAt       *time.Time      `gorm:"type:timestamp;comment:rejected at" json:"rejected_at,omitempty"`
	ScoredAt         *time.Time      `gorm:"type:timestamp;comment:last recompute" json:"scored_at,omitempty"`
	CreatedAt        time.Time       `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index;comment:created at" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP;comment:updated at" json:"updated_at"`

	Shop   *VendorShop   `gorm:"foreignKey:VendorID" json:"shop,omitempty"`
	Badges []VendorBadge `gorm:"foreignKey:VendorID" json:"badges,omitempty"`
}

// TableName set name
func (Vendor) TableName() string {
	return "vendors"
}

// IsPending check vendor is awaiting review
func (v *Vendor) IsPending() bool {
	return v.Status == VendorStatusPending
}

// IsApproved check vendor may sell
func (v *Vendor) IsApproved() bool {
	return v.Status == VendorStatusApproved
}

// VendorShop descriptive storefront of a vendor
type VendorShop struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement;comment:shop id" json:"id"`
	VendorID    uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex;comment:vendor id" json:"vendor_id"`
	Name        string    `gorm:"type:varchar(200);not null;comment:shop name" json:"name"`
	AddressLine string    `gorm:"type:varchar(255);not null;default:'';comment:street address" json:"address_line"`
	City        string    `gorm:"type:varchar(100);not null;default:'';comment:city" json:"city"`
	Region      string    `gorm:"type:varchar(100);not null;default:'';comment:region" json:"region"`
	PostalCode  string    `gorm:"type:varchar(20);not null;default:'';comment:postal code" json:"postal_code"`
	Country     string    `gorm:"type:varchar(2);not null;default:'';comment:ISO country" json:"country"`
	IsActive    bool      `gorm:"not null;default:true;comment:active flag" json:"is_active"`
	CreatedAt   time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;comment:created at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP;comment:updated at" json:"updated_at"`
}

// TableName set name
func (VendorShop) TableName() string {
	return "vendor_shops"
}

// PlanChangeSource plan change source const
const (
	PlanChangeAdmin     = "admin"
	PlanChangeAutomatic = "automatic"
)

// VendorPlanHistory append-only log of plan changes
type VendorPlanHistory struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement;comment:history id" json:"id"`
	VendorID  uint64          `gorm:"type:bigint unsigned;not null;index;comment:vendor id" json:"vendor_id"`
	FromPlan  Plan            `gorm:"type:varchar(20);not null;comment:previous plan" json:"from_plan"`
	ToPlan    Plan            `gorm:"type:varchar(20);not null;comment:new plan" json:"to_plan"`
	FromRate  decimal.Decimal `gorm:"type:decimal(5,2);not null;comment:previous commission" json:"from_rate"`
	ToRate    decimal.Decimal `gorm:"type:decimal(5,2);not null;comment:new commission" json:"to_rate"`
	Source    string          `gorm:"type:varchar(20);not null;comment:admin or automatic" json:"source"`
	ChangedBy *uint64         `gorm:"type:bigint unsigned;comment:admin user id" json:"changed_by,omitempty"`
	ChangedAt time.Time       `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;comment:changed at" json:"changed_at"`
}

// TableName set name
func (VendorPlanHistory) TableName() string {
	return "vendor_plan_history"
}

// BadgeType identifies a badge; a vendor holds each type at most once
type BadgeType string

const (
	BadgeFirstSale    BadgeType = "first_sale"
	BadgeRisingSeller BadgeType = "rising_seller"
	BadgeTopSeller    BadgeType = "top_seller"
	BadgeTopRated     BadgeType = "top_rated"
	BadgeFastShipper  BadgeType = "fast_shipper"
)

// BadgeNames display names of the badge types
var BadgeNames = map[BadgeType]string{
	BadgeFirstSale:    "First Sale",
	BadgeRisingSeller: "Rising Seller",
	BadgeTopSeller:    "Top Seller",
	BadgeTopRated:     "Top Rated",
	BadgeFastShipper:  "Fast Shipper",
}

// VendorBadge is immutable once earned
type VendorBadge struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement;comment:badge id" json:"id"`
	VendorID  uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_badges_vendor_type,priority:1;comment:vendor id" json:"vendor_id"`
	BadgeType BadgeType `gorm:"type:varchar(32);not null;uniqueIndex:uk_badges_vendor_type,priority:2;comment:badge type" json:"badge_type"`
	BadgeName string    `gorm:"type:varchar(100);not null;comment:badge name" json:"badge_name"`
	EarnedAt  time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;comment:earned at" json:"earned_at"`
}

// TableName set name
func (VendorBadge) TableName() string {
	return "vendor_badges"
}

// Review a customer's rating of a vendor for one order
type Review struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement;comment:review id" json:"id"`
	VendorID  uint64    `gorm:"type:bigint unsigned;not null;index:idx_reviews_vendor_created,priority:1;uniqueIndex:uk_review_order_vendor,priority:2;comment:vendor id" json:"vendor_id"`
	OrderID   uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_review_order_vendor,priority:1;comment:order id" json:"order_id"`
	UserID    uint64    `gorm:"type:bigint unsigned;not null;comment:reviewer id" json:"user_id"`
	Rating    int       `gorm:"type:tinyint;not null;comment:1-5" json:"rating"`
	Comment   *string   `gorm:"type:text;comment:comment" json:"comment,omitempty"`
	CreatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index:idx_reviews_vendor_created,priority:2;comment:created at" json:"created_at"`
}

// TableName set name
func (Review) TableName() string {
	return "reviews"
}
