package order

import (
	"context"
	"sort"
	"sync"
)

// MemRepo is an in-memory Repository. One mutex serializes all writers,
// which gives Update the same guarantees as the row lock in PGRepo.
type MemRepo struct {
	mu     sync.Mutex
	orders map[string]*Order
}

func NewMemRepo() *MemRepo {
	return &MemRepo{orders: make(map[string]*Order)}
}

func (r *MemRepo) Create(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return NewConflictError("order id " + o.ID + " already exists")
	}
	r.orders[o.ID] = o.clone()
	return nil
}

func (r *MemRepo) Get(ctx context.Context, id string) (*Order, error) {
	return r.GetForUser(ctx, id, "")
}

func (r *MemRepo) GetForUser(_ context.Context, id, userID string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, err := r.find(id, userID)
	if err != nil {
		return nil, err
	}
	return o.clone(), nil
}

func (r *MemRepo) List(_ context.Context, f ListFilter) ([]*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Order, 0, len(r.orders))
	for _, o := range r.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *MemRepo) Update(_ context.Context, id, userID string, fn MutateFunc) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.find(id, userID)
	if err != nil {
		return nil, err
	}
	o := cur.clone()
	changed, err := fn(o)
	if err != nil {
		return nil, err
	}
	if changed {
		r.orders[id] = o.clone()
	}
	return o, nil
}

func (r *MemRepo) find(id, userID string) (*Order, error) {
	o, ok := r.orders[id]
	if !ok || (userID != "" && o.UserID != userID) {
		return nil, errOrderNotFound()
	}
	return o, nil
}
