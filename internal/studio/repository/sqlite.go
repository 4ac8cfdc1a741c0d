package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"design-studio/internal/studio/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ============================================================
// SQLite Repository
// ============================================================

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrLoginTaken      = errors.New("login already taken")
)

const (
	AdminID       = "11111111-1111-1111-1111-111111111111"
	adminLogin    = "admin"
	adminPassword = "admin"

	timeLayout = time.RFC3339Nano
)

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Init запускает миграции и убеждается в наличии admin.
func (r *Repository) Init(ctx context.Context, migrationsPath string) error {
	if err := r.runMigrations(ctx, migrationsPath); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return r.ensureAdmin(ctx)
}

// ============================================================
// Users
// ============================================================

func (r *Repository) CreateUser(ctx context.Context, login, password, name, email string) (*models.User, error) {
	return r.createUser(ctx, uuid.NewString(), login, password, name, email)
}

func (r *Repository) createUser(ctx context.Context, id, login, password, name, email string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		ID:        id,
		Login:     login,
		Password:  string(hash),
		Name:      name,
		Email:     email,
		CreatedAt: r.now().UTC(),
	}
	_, err = r.db.ExecContext(ctx, `
        INSERT INTO users (id, login, password, name, email, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `, u.ID, u.Login, u.Password, u.Name, u.Email, u.CreatedAt.Format(timeLayout))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, fmt.Errorf("%w: %s", ErrLoginTaken, login)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// GetByCredentials ищет пользователя по логину и сверяет bcrypt-хэш пароля.
func (r *Repository) GetByCredentials(ctx context.Context, login, password string) (*models.User, error) {
	u, err := r.scanUser(r.db.QueryRowContext(ctx, `
        SELECT id, login, password, name, email, created_at
        FROM users
        WHERE login = ?
    `, login))
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, ErrNotFound
	}
	return u, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, `
        SELECT id, login, password, name, email, created_at
        FROM users
        WHERE id = ?
    `, id))
}

func (r *Repository) scanUser(row *sql.Row) (*models.User, error) {
	var (
		u       models.User
		created string
	)
	if err := row.Scan(&u.ID, &u.Login, &u.Password, &u.Name, &u.Email, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}

// ============================================================
// Migrations & Seeding
// ============================================================

func (r *Repository) runMigrations(ctx context.Context, migrationsPath string) error {
	data, err := os.ReadFile(migrationsPath)
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, string(data)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (r *Repository) ensureAdmin(ctx context.Context) error {
	_, err := r.GetByID(ctx, AdminID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	if _, err := r.createUser(ctx, AdminID, adminLogin, adminPassword, "Admin User", "admin@example.com"); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}

// OpenSQLite открывает sqlite по указанному пути.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
