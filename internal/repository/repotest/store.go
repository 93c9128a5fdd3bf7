// Package repotest provides in-memory repositories for service tests.
package repotest

import (
	"sort"
	"sync"
	"time"

	"marketplace/internal/model"
	"marketplace/internal/repository"
)

// Store holds every table. The repositories it hands out share it, so a
// write through one is visible through the others.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	users        map[uint64]*model.User
	orders       map[uint64]*model.Order
	items        []model.OrderItem
	fulfillments []*model.OrderFulfillment
	vendors      map[uint64]*model.Vendor
	shops        map[uint64]*model.VendorShop
	planHistory  []*model.VendorPlanHistory
	badges       []*model.VendorBadge
	reviews      []*model.Review
	convs        map[uint64]*model.Conversation
	participants []*model.ConversationParticipant
	messages     []*model.Message
	tickets      map[uint64]*model.SupportTicket

	lastID uint64

	failures map[string]error
	hooks    map[string]func()
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		now:      time.Now,
		users:    make(map[uint64]*model.User),
		orders:   make(map[uint64]*model.Order),
		vendors:  make(map[uint64]*model.Vendor),
		shops:    make(map[uint64]*model.VendorShop),
		convs:    make(map[uint64]*model.Conversation),
		tickets:  make(map[uint64]*model.SupportTicket),
		failures: make(map[string]error),
		hooks:    make(map[string]func()),
	}
}

// SetNow replaces the clock used for defaulted timestamps
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailOn makes op return err until cleared with a nil err.
// Ops are named "<Repository>.<Method>", e.g. "Tickets.LinkConversation".
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Before runs fn once, right before op next touches the store
func (s *Store) Before(op string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[op] = fn
}

// enter runs the pending hook of op, then locks the store. The caller must
// unlock; a non-nil error means the op should fail with it.
func (s *Store) enter(op string) error {
	s.mu.Lock()
	hook := s.hooks[op]
	delete(s.hooks, op)
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	return s.failures[op]
}

func (s *Store) nextID() uint64 {
	s.lastID++
	return s.lastID
}

// Users returns the user repository
func (s *Store) Users() repository.UserRepository { return &userRepo{s} }

// Orders returns the order repository
func (s *Store) Orders() repository.OrderRepository { return &orderRepo{s} }

// Vendors returns the vendor repository
func (s *Store) Vendors() repository.VendorRepository { return &vendorRepo{s} }

// Badges returns the badge repository
func (s *Store) Badges() repository.BadgeRepository { return &badgeRepo{s} }

// Reviews returns the review repository
func (s *Store) Reviews() repository.ReviewRepository { return &reviewRepo{s} }

// Conversations returns the conversation repository
func (s *Store) Conversations() repository.ConversationRepository { return &conversationRepo{s} }

// Tickets returns the ticket repository
func (s *Store) Tickets() repository.TicketRepository { return &ticketRepo{s} }

// AddUser inserts a user directly
func (s *Store) AddUser(u model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.nextID()
	}
	if u.Status == 0 {
		u.Status = model.UserStatusActive
	}
	s.users[u.ID] = &u
	out := u
	return &out
}

// AddVendor inserts a vendor directly
func (s *Store) AddVendor(v model.Vendor) *model.Vendor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == 0 {
		v.ID = s.nextID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}
	v.Shop = nil
	v.Badges = nil
	s.vendors[v.ID] = &v
	out := v
	return &out
}

// SetFulfillment overwrites one fulfillment row, for arranging test state
func (s *Store) SetFulfillment(orderID, vendorID uint64, mutate func(f *model.OrderFulfillment)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.fulfillments {
		if f.OrderID == orderID && f.VendorID == vendorID {
			mutate(f)
		}
	}
}

// Fulfillment returns a copy of one fulfillment row
func (s *Store) Fulfillment(orderID, vendorID uint64) *model.OrderFulfillment {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.fulfillments {
		if f.OrderID == orderID && f.VendorID == vendorID {
			out := *f
			return &out
		}
	}
	return nil
}

// BadgesOf returns the badges of a vendor in earning order
func (s *Store) BadgesOf(vendorID uint64) []model.VendorBadge {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.VendorBadge
	for _, b := range s.badges {
		if b.VendorID == vendorID {
			out = append(out, *b)
		}
	}
	return out
}

// Counts reports the number of rows of a few tables
func (s *Store) Counts() (conversations, participants, messages, tickets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs), len(s.participants), len(s.messages), len(s.tickets)
}

func (s *Store) orderCopy(o *model.Order) *model.Order {
	out := *o
	out.Items = nil
	out.Fulfillments = nil
	for _, item := range s.items {
		if item.OrderID == o.ID {
			out.Items = append(out.Items, item)
		}
	}
	for _, f := range s.fulfillments {
		if f.OrderID == o.ID {
			out.Fulfillments = append(out.Fulfillments, *f)
		}
	}
	return &out
}

func page(n, pageNum, size int) (int, int) {
	if pageNum < 1 {
		pageNum = 1
	}
	if size <= 0 {
		return 0, n
	}
	start := (pageNum - 1) * size
	if start > n {
		start = n
	}
	end := start + size
	if end > n {
		end = n
	}
	return start, end
}

func sortByCreatedDesc(orders []*model.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
