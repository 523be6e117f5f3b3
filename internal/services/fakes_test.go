package services

import (
	"context"
	"sync"

	"devlink-backend/internal/models"
	"devlink-backend/internal/repository/memstore"
)

type fakeOrders struct {
	mu       sync.Mutex
	requests []OrderRequest
	err      error
}

func (f *fakeOrders) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &Order{ID: "order_" + req.Receipt, Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

type notification struct {
	recipient, subject, body string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
	done chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{done: make(chan struct{}, 16)}
}

func (f *fakeNotifier) Notify(_ context.Context, recipient, subject, body string) error {
	f.mu.Lock()
	f.sent = append(f.sent, notification{recipient, subject, body})
	err := f.err
	f.mu.Unlock()
	select {
	case f.done <- struct{}{}:
	default:
	}
	return err
}

func (f *fakeNotifier) all() []notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification{}, f.sent...)
}

func testUsers() *memstore.Users {
	return memstore.NewUsers(
		&models.User{ID: "alice", FirstName: "Alice", LastName: "Ng", Email: "alice@example.com"},
		&models.User{ID: "bob", FirstName: "Bob", Email: "bob@example.com"},
		&models.User{ID: "carol", FirstName: "Carol", Email: "carol@example.com"},
	)
}
