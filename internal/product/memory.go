package product

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Memory is an in-memory Repository used when no database is configured.
type Memory struct {
	mu    sync.RWMutex
	items map[string]Product
}

func NewMemory(products ...Product) *Memory {
	m := &Memory{items: make(map[string]Product, len(products))}
	for _, p := range products {
		m.Put(p)
	}
	return m
}

func (m *Memory) Put(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[p.ID] = p
}

func (m *Memory) GetByID(_ context.Context, id string) (*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// LoadMemory fills a Memory from a JSON array of products. An empty path
// yields an empty catalog.
func LoadMemory(path string) (*Memory, error) {
	mem := NewMemory()
	if path == "" {
		return mem, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var products []Product
	if err := json.NewDecoder(f).Decode(&products); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for _, p := range products {
		mem.Put(p)
	}
	return mem, nil
}
