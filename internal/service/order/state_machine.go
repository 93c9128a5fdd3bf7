package order

import (
	"marketplace/internal/model"
	"marketplace/pkg/utils"
)

type transition struct {
	from model.OrderStatus
	to   model.OrderStatus
}

// transitions lists every legal move and the roles allowed to make it
var transitions = map[transition][]model.Role{
	{model.OrderStatusPending, model.OrderStatusProcessing}:   {model.RoleVendor, model.RoleAdmin},
	{model.OrderStatusPending, model.OrderStatusCancelled}:    {model.RoleCustomer, model.RoleAdmin},
	{model.OrderStatusProcessing, model.OrderStatusShipped}:   {model.RoleVendor, model.RoleAdmin},
	{model.OrderStatusProcessing, model.OrderStatusCancelled}: {model.RoleAdmin},
	{model.OrderStatusShipped, model.OrderStatusCompleted}:    {model.RoleVendor, model.RoleAdmin},
}

// vendorTargets are the only statuses a vendor may ever set
var vendorTargets = map[model.OrderStatus]bool{
	model.OrderStatusProcessing: true,
	model.OrderStatusShipped:    true,
	model.OrderStatusCompleted:  true,
}

// CheckTransition reports whether role may move a fulfillment from one
// status to another. It returns an InvalidTransition error for moves outside
// the table and a Forbidden error when the move exists but not for role.
func CheckTransition(from, to model.OrderStatus, role model.Role) error {
	if role == model.RoleVendor && !vendorTargets[to] {
		return utils.Errorf(utils.CodeForbidden, "vendors cannot set status %s", to)
	}
	if from == to {
		return utils.Errorf(utils.CodeInvalidTransition, "status is already %s", to)
	}

	roles, ok := transitions[transition{from, to}]
	if !ok {
		return utils.Errorf(utils.CodeInvalidTransition, "cannot move from %s to %s", from, to)
	}
	for _, r := range roles {
		if r == role {
			return nil
		}
	}
	return utils.Errorf(utils.CodeForbidden, "%s cannot move from %s to %s", role, from, to)
}
