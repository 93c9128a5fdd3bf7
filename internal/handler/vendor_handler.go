package handler

import (
	"github.com/gin-gonic/gin"

	"marketplace/internal/model"
	"marketplace/internal/service/vendor"
	"marketplace/pkg/utils"
)

// VendorHandler vendor handler
type VendorHandler struct {
	vendorService vendor.VendorService
}

// NewVendorHandler creates a vendor handler
func NewVendorHandler(vendorService vendor.VendorService) *VendorHandler {
	return &VendorHandler{vendorService: vendorService}
}

// ShopRequest shop details of an application
type ShopRequest struct {
	Name        string `json:"name" binding:"max=200"`
	AddressLine string `json:"address_line" binding:"max=255"`
	City        string `json:"city" binding:"max=100"`
	Region      string `json:"region" binding:"max=100"`
	PostalCode  string `json:"postal_code" binding:"max=20"`
	Country     string `json:"country" binding:"omitempty,len=2,alpha"`
}

// ApplyVendorRequest vendor application request
type ApplyVendorRequest struct {
	BusinessName string       `json:"business_name" binding:"required,notblank,max=200"`
	BusinessType string       `json:"business_type" binding:"required,oneof=individual company association"`
	Description  string       `json:"description" binding:"max=2000"`
	Shop         *ShopRequest `json:"shop"`
}

// RejectVendorRequest rejection request
type RejectVendorRequest struct {
	Reason string `json:"reason" binding:"required,notblank,max=500"`
}

// ChangePlanRequest plan change request
type ChangePlanRequest struct {
	Plan model.Plan `json:"plan" binding:"required,oneof=basic premium golden"`
}

// SubmitReviewRequest review request
type SubmitReviewRequest struct {
	OrderID uint64 `json:"order_id" binding:"required"`
	Rating  int    `json:"rating" binding:"required,gte=1,lte=5"`
	Comment string `json:"comment" binding:"max=1000"`
}

// Apply submits a vendor application for the caller
func (h *VendorHandler) Apply(c *gin.Context) {
	var req ApplyVendorRequest
	if !bindJSON(c, &req) {
		return
	}

	apply := &vendor.ApplyRequest{
		BusinessName: req.BusinessName,
		BusinessType: req.BusinessType,
		Description:  req.Description,
	}
	if req.Shop != nil {
		apply.Shop = &vendor.ShopInput{
			Name:        req.Shop.Name,
			AddressLine: req.Shop.AddressLine,
			City:        req.Shop.City,
			Region:      req.Shop.Region,
			PostalCode:  req.Shop.PostalCode,
			Country:     req.Shop.Country,
		}
	}

	v, err := h.vendorService.Apply(c.Request.Context(), actor(c), apply)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, v)
}

// Approve approves a pending vendor
func (h *VendorHandler) Approve(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	v, err := h.vendorService.Approve(c.Request.Context(), actor(c), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, v)
}

// Reject rejects a pending vendor
func (h *VendorHandler) Reject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req RejectVendorRequest
	if !bindJSON(c, &req) {
		return
	}

	v, err := h.vendorService.Reject(c.Request.Context(), actor(c), id, req.Reason)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, v)
}

// ChangePlan moves a vendor onto another plan
func (h *VendorHandler) ChangePlan(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ChangePlanRequest
	if !bindJSON(c, &req) {
		return
	}

	v, err := h.vendorService.ChangePlan(c.Request.Context(), actor(c), id, req.Plan)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, v)
}

// PlanHistory lists plan changes
func (h *VendorHandler) PlanHistory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	history, err := h.vendorService.PlanHistory(c.Request.Context(), actor(c), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, history)
}

// Recompute refreshes a vendor's aggregates, plan and badges
func (h *VendorHandler) Recompute(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.vendorService.Recompute(c.Request.Context(), actor(c), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}

// GetVendor gets a vendor
func (h *VendorHandler) GetVendor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	v, err := h.vendorService.GetVendor(c.Request.Context(), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	a := actor(c)
	if v.Status != model.VendorStatusApproved && !a.IsAdmin() && v.UserID != a.UserID {
		utils.HandleError(c, utils.ErrVendorNotFound)
		return
	}

	utils.SuccessResponse(c, v)
}

// GetMyVendor gets the caller's own vendor profile, whatever its status
func (h *VendorHandler) GetMyVendor(c *gin.Context) {
	v, err := h.vendorService.GetByUser(c.Request.Context(), actor(c).UserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, v)
}

// ListVendors lists vendors
func (h *VendorHandler) ListVendors(c *gin.Context) {
	page, pageSize := pageParams(c)
	status := model.VendorStatus(c.Query("status"))

	vendors, total, err := h.vendorService.ListVendors(c.Request.Context(), actor(c), status, page, pageSize)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessPageResponse(c, vendors, total, page, pageSize)
}

// ListBadges lists a vendor's badges
func (h *VendorHandler) ListBadges(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	badges, err := h.vendorService.ListBadges(c.Request.Context(), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, badges)
}

// SubmitReview rates the vendor's part of a completed order
func (h *VendorHandler) SubmitReview(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req SubmitReviewRequest
	if !bindJSON(c, &req) {
		return
	}

	review, err := h.vendorService.SubmitReview(c.Request.Context(), actor(c), &vendor.ReviewRequest{
		OrderID:  req.OrderID,
		VendorID: id,
		Rating:   req.Rating,
		Comment:  req.Comment,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, review)
}
