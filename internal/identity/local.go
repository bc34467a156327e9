package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

const accountsSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    name          TEXT NOT NULL,
    photo_url     TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    created_at    TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Credentials are what the local provider asks the user for.
type Credentials struct {
	Email    string
	Password string
}

// CredentialsFunc collects credentials interactively. Returning
// ErrPopupClosed means the user backed out.
type CredentialsFunc func(ctx context.Context) (Credentials, error)

// Local authenticates against bcrypt-hashed accounts in SQLite.
type Local struct {
	db      *sql.DB
	creds   CredentialsFunc
	session *SessionFile
	hub     *Hub
	cost    int
	logger  *slog.Logger
}

var _ Provider = (*Local)(nil)

// LocalOption configures a Local provider.
type LocalOption func(*Local)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) LocalOption {
	return func(l *Local) { l.cost = cost }
}

// WithLocalLogger sets the logger.
func WithLocalLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) { l.logger = logger }
}

// OpenLocal opens the accounts database at path and restores any
// persisted session.
func OpenLocal(path string, session *SessionFile, creds CredentialsFunc, opts ...LocalOption) (*Local, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open accounts: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("open accounts: %w", err)
	}
	if _, err := db.Exec(accountsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply accounts schema: %w", err)
	}

	restored, err := session.Load()
	if err != nil {
		db.Close()
		return nil, err
	}

	l := &Local{
		db:      db,
		creds:   creds,
		session: session,
		hub:     NewHub(restored),
		cost:    bcrypt.DefaultCost,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Close closes the accounts database.
func (l *Local) Close() error {
	return l.db.Close()
}

// Register creates an account. It does not sign the user in.
func (l *Local) Register(ctx context.Context, name, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	name = strings.TrimSpace(name)

	if email == "" || name == "" || password == "" {
		return nil, errors.New("name, email and password are required")
	}
	if len(password) < 6 {
		return nil, errors.New("password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	u := &User{ID: uuid.NewString(), Name: name, Email: email}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, password_hash)
		VALUES (?, ?, ?, ?)
	`, u.ID, u.Email, u.Name, string(hash))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: accounts.email") {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("register: %w", err)
	}
	l.logger.Info("account registered", "uid", u.ID, "email", u.Email)
	return u, nil
}

// SignInInteractive asks for credentials and verifies them.
func (l *Local) SignInInteractive(ctx context.Context) (*User, error) {
	creds, err := l.creds(ctx)
	if err != nil {
		return nil, err
	}
	email := strings.TrimSpace(strings.ToLower(creds.Email))

	var u User
	var hash string
	err = l.db.QueryRowContext(ctx, `
		SELECT id, email, name, photo_url, password_hash FROM accounts WHERE email = ?
	`, email).Scan(&u.ID, &u.Email, &u.Name, &u.PhotoURL, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		l.logger.Debug("sign-in: unknown email", "email", email)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)); err != nil {
		l.logger.Debug("sign-in: bad password", "email", email)
		return nil, ErrInvalidCredentials
	}

	if err := l.session.Save(&u); err != nil {
		return nil, err
	}
	l.hub.Publish(&u)
	return cloneUser(&u), nil
}

// SignOut clears the session.
func (l *Local) SignOut(ctx context.Context) error {
	if err := l.session.Clear(); err != nil {
		return err
	}
	l.hub.Publish(nil)
	return nil
}

// Subscribe registers fn for auth-state changes.
func (l *Local) Subscribe(fn func(*User)) Subscription {
	return l.hub.Subscribe(fn)
}
