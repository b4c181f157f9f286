// README: Payment service tests against an in-memory repository.
package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"waykel/internal/lifecycle"
	"waykel/internal/modules/permission"
	"waykel/internal/types"
)

type memStore struct {
	mu       sync.Mutex
	payments map[types.ID]*Payment
	events   []Event
}

func newMemStore(ids ...types.ID) *memStore {
	m := &memStore{payments: map[types.ID]*Payment{}}
	for _, id := range ids {
		m.payments[id] = &Payment{RideID: id, Status: StatusPending}
	}
	return m
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status != from || p.Version != version {
		return false, nil
	}
	p.Status = to
	p.Version++
	return true, nil
}

func (m *memStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.ID = int64(len(m.events) + 1)
	m.events = append(m.events, cp)
	return nil
}

func (m *memStore) ListEvents(_ context.Context, id types.ID) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.RideID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	return nil
}

type stubViewer struct {
	allowed map[types.ID]bool
}

func (v stubViewer) CanView(_ context.Context, id types.ID, _ permission.User) error {
	if v.allowed[id] {
		return nil
	}
	return permission.ErrActorViolation
}

var (
	admin    = permission.User{ID: "adm-1", Role: permission.RoleAdmin}
	customer = permission.User{ID: "cust-1", Role: permission.RoleCustomer}
)

func newTestService(store *memStore, pub Publisher) *Service {
	svc := NewService(store, stubViewer{allowed: map[types.ID]bool{"ride-1": true}}, pub)
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return svc
}

func TestAdminSettlementFlow(t *testing.T) {
	store := newMemStore("ride-1")
	pub := &recordingPublisher{}
	svc := newTestService(store, pub)
	ctx := context.Background()

	for _, to := range []string{"invoiced", "paid", "disputed", "settled"} {
		p, err := svc.Transition(ctx, TransitionCommand{RideID: "ride-1", To: to, Actor: admin})
		if err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
		if string(p.Status) != to {
			t.Fatalf("status = %s, want %s", p.Status, to)
		}
	}
	p, err := svc.Get(ctx, GetQuery{RideID: "ride-1", Actor: admin})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Status != StatusSettled || p.Version != 4 {
		t.Fatalf("unexpected payment %+v", p)
	}
	events, err := svc.Events(ctx, GetQuery{RideID: "ride-1", Actor: customer})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 4 || events[0].FromStatus != StatusPending || events[3].ToStatus != StatusSettled {
		t.Fatalf("unexpected events %+v", events)
	}
	if len(pub.channels) != 4 || pub.channels[0] != UpdatesChannel {
		t.Fatalf("unexpected publishes %v", pub.channels)
	}
}

func TestNonAdminCannotMovePayment(t *testing.T) {
	svc := newTestService(newMemStore("ride-1"), nil)
	_, err := svc.Transition(context.Background(), TransitionCommand{RideID: "ride-1", To: "invoiced", Actor: customer})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	super := permission.User{ID: "ops-1", Role: permission.RoleTransporter, IsSuperAdmin: true}
	if _, err := svc.Transition(context.Background(), TransitionCommand{RideID: "ride-1", To: "invoiced", Actor: super}); err != nil {
		t.Fatalf("super admin should move payment: %v", err)
	}
}

func TestPaymentTransitionErrors(t *testing.T) {
	svc := newTestService(newMemStore("ride-1"), nil)
	ctx := context.Background()

	_, err := svc.Transition(ctx, TransitionCommand{RideID: "ride-1", To: "disputed", Actor: admin})
	if !errors.Is(err, lifecycle.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	_, err = svc.Transition(ctx, TransitionCommand{RideID: "ride-1", To: "lost", Actor: admin})
	if !errors.Is(err, lifecycle.ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
	_, err = svc.Transition(ctx, TransitionCommand{RideID: "ride-9", To: "invoiced", Actor: admin})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPaymentViewRequiresRideAccess(t *testing.T) {
	svc := newTestService(newMemStore("ride-1", "ride-2"), nil)
	ctx := context.Background()

	if _, err := svc.Get(ctx, GetQuery{RideID: "ride-1", Actor: customer}); err != nil {
		t.Fatalf("customer should see ride-1 payment: %v", err)
	}
	if _, err := svc.Get(ctx, GetQuery{RideID: "ride-2", Actor: customer}); !errors.Is(err, permission.ErrActorViolation) {
		t.Fatalf("expected ErrActorViolation, got %v", err)
	}
	if _, err := svc.Get(ctx, GetQuery{RideID: "ride-2", Actor: admin}); err != nil {
		t.Fatalf("admin should see any payment: %v", err)
	}
}

func TestPaymentConflict(t *testing.T) {
	store := newMemStore("ride-1")
	svc := newTestService(store, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transition(ctx, TransitionCommand{RideID: "ride-1", To: "invoiced", Actor: admin})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConflict), errors.Is(err, lifecycle.ErrIllegalTransition):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if p, _ := store.Get(ctx, "ride-1"); p.Version != 1 {
		t.Fatalf("version = %d, want 1", p.Version)
	}
}
