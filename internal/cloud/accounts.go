package cloud

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/tally/internal/ledger"
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 6

var (
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidCredentials is returned for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Account is a registered user. ID is the owner id of the user's rows.
type Account struct {
	ID           string
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Accounts persists user accounts.
type Accounts interface {
	// Create stores a new account. Returns ErrUsernameTaken on conflict.
	Create(ctx context.Context, a Account) error

	// ByUsername looks up an account. ok is false if none exists.
	ByUsername(ctx context.Context, username string) (a Account, ok bool, err error)
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// CheckPassword reports ErrInvalidCredentials if password does not match hash.
func CheckPassword(hash []byte, password string) error {
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// MemoryAccounts keeps accounts in a map.
type MemoryAccounts struct {
	mu     sync.Mutex
	byName map[string]Account
}

// NewMemoryAccounts creates an empty account table.
func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{byName: make(map[string]Account)}
}

// Create implements Accounts.
func (m *MemoryAccounts) Create(_ context.Context, a Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[a.Username]; ok {
		return ErrUsernameTaken
	}
	m.byName[a.Username] = a
	return nil
}

// ByUsername implements Accounts.
func (m *MemoryAccounts) ByUsername(_ context.Context, username string) (Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byName[username]
	return a, ok, nil
}

const accountsSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// uniqueViolation is the Postgres SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// PostgresAccounts keeps accounts in a users table.
type PostgresAccounts struct {
	db *sql.DB
}

// NewPostgresAccounts creates the users table on db if needed.
func NewPostgresAccounts(db *sql.DB) (*PostgresAccounts, error) {
	if _, err := db.Exec(accountsSchema); err != nil {
		return nil, fmt.Errorf("create users table: %w", err)
	}
	return &PostgresAccounts{db: db}, nil
}

// Create implements Accounts.
func (p *PostgresAccounts) Create(ctx context.Context, a Account) error {
	_, err := p.db.ExecContext(ctx,
		"INSERT INTO users (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)",
		a.ID, a.Username, string(a.PasswordHash), a.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// ByUsername implements Accounts.
func (p *PostgresAccounts) ByUsername(ctx context.Context, username string) (Account, bool, error) {
	var (
		a    Account
		hash string
	)
	err := p.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = $1",
		username,
	).Scan(&a.ID, &a.Username, &hash, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, fmt.Errorf("get user: %w", err)
	}
	a.PasswordHash = []byte(hash)
	return a, true, nil
}

// newAccount validates the input and builds an account with a hashed password.
func newAccount(ids ledger.IDGenerator, now time.Time, username, password string) (Account, error) {
	if username == "" {
		return Account{}, &ledger.ValidationError{Field: "username", Message: "username is required"}
	}
	if len(password) < MinPasswordLength {
		return Account{}, &ledger.ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength),
		}
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}
	return Account{
		ID:           ids.NewID(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
	}, nil
}
