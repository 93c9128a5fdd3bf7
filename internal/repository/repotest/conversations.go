package repotest

import (
	"context"
	"sort"
	"time"

	"marketplace/internal/model"
	"marketplace/internal/repository"
)

type conversationRepo struct{ s *Store }

func (s *Store) conversationCopy(c *model.Conversation) *model.Conversation {
	out := *c
	out.Participants = nil
	for _, p := range s.participants {
		if p.ConversationID == c.ID {
			out.Participants = append(out.Participants, *p)
		}
	}
	return &out
}

func (r *conversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	s := r.s
	if err := s.enter("Conversations.Create"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	seen := make(map[uint64]bool)
	for _, p := range conv.Participants {
		if seen[p.UserID] {
			return repository.ErrDuplicate
		}
		seen[p.UserID] = true
	}

	now := s.now()
	conv.ID = s.nextID()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.LastActivityAt.IsZero() {
		conv.LastActivityAt = conv.CreatedAt
	}
	conv.UpdatedAt = conv.CreatedAt
	for i := range conv.Participants {
		p := &conv.Participants[i]
		p.ID = s.nextID()
		p.ConversationID = conv.ID
		if p.JoinedAt.IsZero() {
			p.JoinedAt = conv.CreatedAt
		}
		stored := *p
		s.participants = append(s.participants, &stored)
	}
	stored := *conv
	stored.Participants = nil
	s.convs[conv.ID] = &stored
	return nil
}

func (r *conversationRepo) GetByID(ctx context.Context, id uint64) (*model.Conversation, error) {
	s := r.s
	if err := s.enter("Conversations.GetByID"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.conversationCopy(c), nil
}

func (r *conversationRepo) Delete(ctx context.Context, id uint64) error {
	s := r.s
	if err := s.enter("Conversations.Delete"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	delete(s.convs, id)
	participants := s.participants[:0]
	for _, p := range s.participants {
		if p.ConversationID != id {
			participants = append(participants, p)
		}
	}
	s.participants = participants
	messages := s.messages[:0]
	for _, m := range s.messages {
		if m.ConversationID != id {
			messages = append(messages, m)
		}
	}
	s.messages = messages
	return nil
}

func (r *conversationRepo) ListByUser(ctx context.Context, userID uint64, pageNum, pageSize int) ([]*model.Conversation, int64, error) {
	s := r.s
	if err := s.enter("Conversations.ListByUser"); err != nil {
		s.mu.Unlock()
		return nil, 0, err
	}
	defer s.mu.Unlock()
	var all []*model.Conversation
	for _, p := range s.participants {
		if p.UserID != userID {
			continue
		}
		if c, ok := s.convs[p.ConversationID]; ok {
			all = append(all, s.conversationCopy(c))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].LastActivityAt.Equal(all[j].LastActivityAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].LastActivityAt.After(all[j].LastActivityAt)
	})
	start, end := page(len(all), pageNum, pageSize)
	return all[start:end], int64(len(all)), nil
}

func (r *conversationRepo) GetParticipant(ctx context.Context, conversationID, userID uint64) (*model.ConversationParticipant, error) {
	s := r.s
	if err := s.enter("Conversations.GetParticipant"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.ConversationID == conversationID && p.UserID == userID {
			out := *p
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *conversationRepo) MarkRead(ctx context.Context, conversationID, userID uint64, at time.Time) error {
	s := r.s
	if err := s.enter("Conversations.MarkRead"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.ConversationID == conversationID && p.UserID == userID {
			t := at
			p.LastReadAt = &t
		}
	}
	return nil
}

func (r *conversationRepo) AppendMessage(ctx context.Context, msg *model.Message) error {
	s := r.s
	if err := s.enter("Conversations.AppendMessage"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	c, ok := s.convs[msg.ConversationID]
	if !ok {
		return repository.ErrNotFound
	}
	c.MessageCount++
	c.LastActivityAt = msg.CreatedAt
	msg.Seq = c.MessageCount
	msg.ID = s.nextID()
	stored := *msg
	stored.Sender = nil
	s.messages = append(s.messages, &stored)
	return nil
}

func (r *conversationRepo) ListMessages(ctx context.Context, conversationID uint64, afterSeq int64, limit int) ([]*model.Message, error) {
	s := r.s
	if err := s.enter("Conversations.ListMessages"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.Message
	for _, m := range s.messages {
		if m.ConversationID != conversationID || m.Seq <= afterSeq {
			continue
		}
		c := *m
		if u, ok := s.users[m.SenderID]; ok {
			sender := *u
			c.Sender = &sender
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *conversationRepo) GetMessage(ctx context.Context, id uint64) (*model.Message, error) {
	s := r.s
	if err := s.enter("Conversations.GetMessage"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			out := *m
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *conversationRepo) EditMessage(ctx context.Context, id uint64, content string, at time.Time) error {
	s := r.s
	if err := s.enter("Conversations.EditMessage"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id && !m.IsDeleted {
			m.Content = content
			t := at
			m.EditedAt = &t
			return nil
		}
	}
	return repository.ErrPredicateFailed
}

func (r *conversationRepo) SoftDeleteMessage(ctx context.Context, id uint64, at time.Time) error {
	s := r.s
	if err := s.enter("Conversations.SoftDeleteMessage"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id && !m.IsDeleted {
			m.IsDeleted = true
			t := at
			m.RemovedAt = &t
			return nil
		}
	}
	return repository.ErrPredicateFailed
}

type ticketRepo struct{ s *Store }

func (r *ticketRepo) Create(ctx context.Context, ticket *model.SupportTicket) error {
	s := r.s
	if err := s.enter("Tickets.Create"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	ticket.ID = s.nextID()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = s.now()
	}
	ticket.UpdatedAt = ticket.CreatedAt
	stored := *ticket
	s.tickets[ticket.ID] = &stored
	return nil
}

func (r *ticketRepo) GetByID(ctx context.Context, id uint64) (*model.SupportTicket, error) {
	s := r.s
	if err := s.enter("Tickets.GetByID"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *t
	return &out, nil
}

func (r *ticketRepo) LinkConversation(ctx context.Context, ticketID, conversationID uint64) error {
	s := r.s
	if err := s.enter("Tickets.LinkConversation"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok || t.ConversationID != nil {
		return repository.ErrPredicateFailed
	}
	id := conversationID
	t.ConversationID = &id
	return nil
}

func (r *ticketRepo) UpdateStatus(ctx context.Context, id uint64, status model.TicketStatus, at time.Time) error {
	s := r.s
	if err := s.enter("Tickets.UpdateStatus"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil
	}
	t.Status = status
	t.UpdatedAt = at
	if status.Resolves() && t.ResolvedAt == nil {
		stamp := at
		t.ResolvedAt = &stamp
	}
	return nil
}

func (r *ticketRepo) List(ctx context.Context, filter repository.TicketFilter, pageNum, pageSize int) ([]*model.SupportTicket, int64, error) {
	s := r.s
	if err := s.enter("Tickets.List"); err != nil {
		s.mu.Unlock()
		return nil, 0, err
	}
	defer s.mu.Unlock()
	var all []*model.SupportTicket
	for _, t := range s.tickets {
		if filter.VendorID != 0 && t.VendorID != filter.VendorID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		c := *t
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	start, end := page(len(all), pageNum, pageSize)
	return all[start:end], int64(len(all)), nil
}
