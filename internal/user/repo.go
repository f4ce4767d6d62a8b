// Package user resolves authenticated principals to internal user ids.
package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/goimay/orders/internal/order"
)

var (
	ErrNotFound = errors.New("user not found")
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Repository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var u User
	err := r.db.QueryRow(ctx, `
		SELECT id::text, email, COALESCE(role, 'USER')
		FROM users WHERE lower(email)=lower($1)
	`, email).Scan(&u.ID, &u.Email, &u.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Directory is an in-memory Repository for development and tests.
type Directory struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewDirectory(users ...User) *Directory {
	d := &Directory{users: make(map[string]User, len(users))}
	for _, u := range users {
		d.Add(u)
	}
	return d
}

func (d *Directory) Add(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[strings.ToLower(u.Email)] = u
}

func (d *Directory) GetByEmail(_ context.Context, email string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// LoadDirectory fills a Directory from a JSON array of users.
func LoadDirectory(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var users []User
	if err := json.NewDecoder(f).Decode(&users); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return NewDirectory(users...), nil
}

// Resolver adapts a Repository to order.IdentityResolver.
type Resolver struct{ Repo Repository }

func (r Resolver) ResolveUserID(ctx context.Context, email string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", order.NewNotFoundError("user not found")
	}
	u, err := r.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", order.NewNotFoundError("user not found")
		}
		return "", err
	}
	return u.ID, nil
}

// SubjectResolver uses the normalized token subject as the user id. It
// stands in for the user table when the service runs without a database.
type SubjectResolver struct{}

func (SubjectResolver) ResolveUserID(_ context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", order.NewNotFoundError("user not found")
	}
	return email, nil
}
