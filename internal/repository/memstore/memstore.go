// Package memstore provides in-memory stores with the same contracts as the
// Postgres repositories. They back unit tests and local tooling.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"devlink-backend/internal/models"
	"devlink-backend/internal/repository"
)

// Users is an in-memory users table
type Users struct {
	mu    sync.Mutex
	users map[string]*models.User
}

// NewUsers creates a users table seeded with users
func NewUsers(users ...*models.User) *Users {
	s := &Users{users: make(map[string]*models.User)}
	for _, u := range users {
		copied := *u
		s.users[u.ID] = &copied
	}
	return s
}

// Update mutates a stored user in place
func (s *Users) Update(id string, fn func(u *models.User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		fn(u)
	}
}

func (s *Users) GetByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *Users) GetByIDs(_ context.Context, ids []string) (map[string]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			copied := *u
			out[id] = &copied
		}
	}
	return out, nil
}

func (s *Users) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[id]
	return ok, nil
}

func (s *Users) GetEntitlement(_ context.Context, id string) (*models.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &models.Entitlement{UserID: id, IsPremium: u.IsPremium, Tier: u.MembershipTier}, nil
}

// Connections is an in-memory connection request ledger: one row per
// unordered pair and one transition out of interested.
type Connections struct {
	mu   sync.Mutex
	rows []*models.ConnectionRequest
}

// NewConnections creates an empty ledger
func NewConnections() *Connections {
	return &Connections{}
}

// Count returns the number of stored requests
func (s *Connections) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func samePair(r *models.ConnectionRequest, a, b string) bool {
	return (r.FromUserID == a && r.ToUserID == b) || (r.FromUserID == b && r.ToUserID == a)
}

func (s *Connections) Create(_ context.Context, req *models.ConnectionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if samePair(r, req.FromUserID, req.ToUserID) {
			return repository.ErrDuplicate
		}
	}
	copied := *req
	s.rows = append(s.rows, &copied)
	return nil
}

func (s *Connections) Review(_ context.Context, requestID, reviewerID string, decision models.RequestStatus, now time.Time) (*models.ConnectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ID == requestID && r.ToUserID == reviewerID && r.Status == models.StatusInterested {
			r.Status = decision
			r.UpdatedAt = now
			copied := *r
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Connections) ListIncoming(_ context.Context, userID string) ([]*models.ConnectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ConnectionRequest
	for i := len(s.rows) - 1; i >= 0; i-- {
		r := s.rows[i]
		if r.ToUserID == userID && r.Status == models.StatusInterested {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *Connections) ListAcceptedPeerIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.rows {
		if r.Status != models.StatusAccepted {
			continue
		}
		switch userID {
		case r.FromUserID:
			out = append(out, r.ToUserID)
		case r.ToUserID:
			out = append(out, r.FromUserID)
		}
	}
	return out, nil
}

func (s *Connections) HasAccepted(_ context.Context, a, b string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.Status == models.StatusAccepted && samePair(r, a, b) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Connections) ListPendingRecipients(_ context.Context, from, to time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, r := range s.rows {
		if r.Status != models.StatusInterested || r.CreatedAt.Before(from) || !r.CreatedAt.Before(to) {
			continue
		}
		if !seen[r.ToUserID] {
			seen[r.ToUserID] = true
			out = append(out, r.ToUserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Chats is an in-memory thread and message store
type Chats struct {
	mu       sync.Mutex
	threads  map[string]*models.ChatThread
	messages map[string][]models.Message
	nextID   int64
	failNext error
}

// NewChats creates an empty chat store
func NewChats() *Chats {
	return &Chats{
		threads:  make(map[string]*models.ChatThread),
		messages: make(map[string][]models.Message),
	}
}

// FailNextAppend makes the next AppendMessage return err
func (s *Chats) FailNextAppend(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// ThreadCount returns the number of threads
func (s *Chats) ThreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}

func (s *Chats) EnsureThread(_ context.Context, newID, lowID, highID string, now time.Time) (*models.ChatThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := lowID + "\x00" + highID
	t, ok := s.threads[key]
	if !ok {
		t = &models.ChatThread{ID: newID, UserLowID: lowID, UserHighID: highID, CreatedAt: now}
		s.threads[key] = t
	}
	copied := *t
	return &copied, nil
}

func (s *Chats) AppendMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	s.nextID++
	msg.ID = s.nextID
	msg.CreatedAt = time.Now().UTC()
	s.messages[msg.ThreadID] = append(s.messages[msg.ThreadID], *msg)
	return nil
}

func (s *Chats) ListMessages(_ context.Context, threadID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message{}, s.messages[threadID]...), nil
}

// Payments is an in-memory payment ledger applying deliveries with the same
// rules as the Postgres transaction.
type Payments struct {
	mu       sync.Mutex
	users    *Users
	payments map[string]*models.Payment
	events   map[string]models.WebhookDelivery
}

// NewPayments creates a payment ledger that grants entitlements on users
func NewPayments(users *Users) *Payments {
	return &Payments{
		users:    users,
		payments: make(map[string]*models.Payment),
		events:   make(map[string]models.WebhookDelivery),
	}
}

// Get returns the payment for orderID
func (s *Payments) Get(orderID string) (models.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[orderID]
	if !ok {
		return models.Payment{}, false
	}
	return *p, true
}

// Len returns the number of payments
func (s *Payments) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

// Deliveries returns the number of recorded webhook deliveries
func (s *Payments) Deliveries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *Payments) Create(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.OrderID]; ok {
		return repository.ErrDuplicate
	}
	copied := *p
	s.payments[p.OrderID] = &copied
	return nil
}

func (s *Payments) ApplyDelivery(_ context.Context, d *models.WebhookDelivery, now time.Time) (*repository.TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[d.OrderID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	res := &repository.TransitionResult{}
	if d.Status.IsTerminal() && p.Status == models.PaymentCreated {
		p.Status = d.Status
		p.UpdatedAt = now
		res.Applied = true
		if p.Status == models.PaymentCaptured {
			tier := p.Tier
			s.users.Update(p.UserID, func(u *models.User) {
				u.IsPremium = true
				u.MembershipTier = tier
			})
		}
	}
	if _, seen := s.events[d.EventID]; !seen {
		rec := *d
		rec.Applied = res.Applied
		s.events[d.EventID] = rec
	}

	copied := *p
	res.Payment = &copied
	return res, nil
}
