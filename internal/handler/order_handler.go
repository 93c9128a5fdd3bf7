package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"marketplace/internal/model"
	"marketplace/internal/service/attribution"
	"marketplace/internal/service/order"
	"marketplace/pkg/utils"
)

// OrderHandler order handler
type OrderHandler struct {
	orderService order.OrderService
	views        attribution.Service
}

// NewOrderHandler creates an order handler
func NewOrderHandler(orderService order.OrderService, views attribution.Service) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		views:        views,
	}
}

// PlaceOrderItem one checkout line
type PlaceOrderItem struct {
	ProductID   uint64          `json:"product_id" binding:"required"`
	ProductName string          `json:"product_name" binding:"required,notblank,max=200"`
	VendorID    uint64          `json:"vendor_id" binding:"required"`
	Quantity    int             `json:"quantity" binding:"required,positive"`
	UnitPrice   decimal.Decimal `json:"unit_price" binding:"money"`
}

// PlaceOrderRequest checkout request
type PlaceOrderRequest struct {
	Items           []PlaceOrderItem `json:"items" binding:"required,min=1,dive"`
	ShippingName    string           `json:"shipping_name" binding:"required,notblank,max=100"`
	ShippingPhone   string           `json:"shipping_phone" binding:"required,phone"`
	ShippingAddress string           `json:"shipping_address" binding:"required,notblank,max=500"`
}

// TransitionOrderRequest status change request. VendorID scopes an admin
// transition to one vendor; vendors are always scoped to their own items.
type TransitionOrderRequest struct {
	To       model.OrderStatus `json:"to" binding:"required"`
	VendorID uint64            `json:"vendor_id"`
}

// PlaceOrder places an order for the caller
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	input := &order.PlaceOrderInput{
		ShippingName:    req.ShippingName,
		ShippingPhone:   req.ShippingPhone,
		ShippingAddress: req.ShippingAddress,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, order.ItemInput{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VendorID:    item.VendorID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	placed, err := h.orderService.PlaceOrder(c.Request.Context(), actor(c), input)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, placed)
}

// GetOrder gets an order by id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	o, err := h.orderService.GetOrder(c.Request.Context(), actor(c), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, o)
}

// GetOrderByNo gets an order by order number
func (h *OrderHandler) GetOrderByNo(c *gin.Context) {
	o, err := h.orderService.GetOrderByOrderNo(c.Request.Context(), actor(c), c.Param("order_no"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, o)
}

// ListOrders lists the caller's orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	page, pageSize := pageParams(c)

	orders, total, err := h.orderService.ListUserOrders(c.Request.Context(), actor(c), page, pageSize)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessPageResponse(c, orders, total, page, pageSize)
}

// Transition moves an order's fulfillment status
func (h *OrderHandler) Transition(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req TransitionOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	o, err := h.orderService.Transition(c.Request.Context(), actor(c), order.TransitionRequest{
		OrderID:  id,
		VendorID: req.VendorID,
		To:       req.To,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, o)
}

// ListVendorOrders lists a vendor's attributed orders
func (h *OrderHandler) ListVendorOrders(c *gin.Context) {
	vendorID, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, pageSize := pageParams(c)
	status := model.OrderStatus(c.Query("status"))

	views, total, err := h.views.ListVendorOrders(c.Request.Context(), actor(c), vendorID, status, page, pageSize)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessPageResponse(c, views, total, page, pageSize)
}

// GetVendorOrder gets a vendor's view of one order
func (h *OrderHandler) GetVendorOrder(c *gin.Context) {
	vendorID, ok := pathID(c, "id")
	if !ok {
		return
	}
	orderID, ok := pathID(c, "order_id")
	if !ok {
		return
	}

	view, err := h.views.GetVendorOrder(c.Request.Context(), actor(c), vendorID, orderID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, view)
}
