package events

// OrderPlacedPayload order.placed
type OrderPlacedPayload struct {
	OrderID   uint64   `json:"order_id"`
	OrderNo   string   `json:"order_no"`
	UserID    uint64   `json:"user_id"`
	VendorIDs []uint64 `json:"vendor_ids"`
	Total     string   `json:"total"`
}

// OrderTransitionedPayload order.transitioned, one per accepted transition request
type OrderTransitionedPayload struct {
	OrderID   uint64   `json:"order_id"`
	OrderNo   string   `json:"order_no"`
	UserID    uint64   `json:"user_id"`
	VendorIDs []uint64 `json:"vendor_ids"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Rollup    string   `json:"rollup"`
	ActorID   uint64   `json:"actor_id"`
	ActorRole string   `json:"actor_role"`
}

// VendorPayload vendor lifecycle events
type VendorPayload struct {
	VendorID uint64 `json:"vendor_id"`
	UserID   uint64 `json:"user_id"`
	Status   string `json:"status,omitempty"`
	FromPlan string `json:"from_plan,omitempty"`
	ToPlan   string `json:"to_plan,omitempty"`
	Badge    string `json:"badge,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// MessagePayload message events
type MessagePayload struct {
	ConversationID uint64 `json:"conversation_id"`
	MessageID      uint64 `json:"message_id"`
	Seq            int64  `json:"seq"`
	SenderID       uint64 `json:"sender_id"`
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
}

// TicketPayload ticket events
type TicketPayload struct {
	TicketID  uint64 `json:"ticket_id"`
	VendorID  uint64 `json:"vendor_id"`
	CreatedBy uint64 `json:"created_by"`
	Subject   string `json:"subject"`
	Priority  string `json:"priority"`
	Channel   string `json:"channel"`
	Status    string `json:"status,omitempty"`
}
