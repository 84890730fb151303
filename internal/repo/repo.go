package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"giveaway/internal/model"
)

var (
	ErrGiveawayNotFound = errors.New("giveaway not found")
	ErrGiveawayClosed   = errors.New("giveaway closed")
	ErrDuplicateEntry   = errors.New("duplicate entry")
	ErrEntryNotFound    = errors.New("entry not found")
	ErrAdminNotFound    = errors.New("admin not found")
)

type Repository interface {
	CreateGiveaway(ctx context.Context, g *model.Giveaway) (int64, error)
	GetGiveawayByID(ctx context.Context, id int64) (*model.Giveaway, error)
	UpdateGiveaway(ctx context.Context, g *model.Giveaway) error
	DeleteGiveawayTx(ctx context.Context, id int64) error
	ListActiveGiveaways(ctx context.Context, now time.Time) ([]model.Giveaway, error)
	ListPastGiveaways(ctx context.Context, now time.Time, limit int) ([]model.Giveaway, error)
	CountEntries(ctx context.Context, giveawayID int64) (int, error)
	CreateEntryTx(ctx context.Context, e *model.Entry, now time.Time) (int64, error)
	GetEntryByID(ctx context.Context, id int64) (*model.Entry, error)
	DeleteEntry(ctx context.Context, id int64) error
	ListEntriesByGiveaway(ctx context.Context, giveawayID int64) ([]model.Entry, error)
	GetAdminByUsername(ctx context.Context, username string) (*model.Admin, error)
	CreateAdmin(ctx context.Context, a *model.Admin) (int64, error)
	DeleteAdminByUsername(ctx context.Context, username string) error
	MigrateUp(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) CreateGiveaway(ctx context.Context, g *model.Giveaway) (int64, error) {
	query := `
		INSERT INTO giveaways (title, description, prize, image, start_date, end_date)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		g.Title, g.Description, g.Prize, g.Image, g.StartDate, g.EndDate,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert giveaway: %w", err)
	}
	return id, nil
}

func (r *repository) GetGiveawayByID(ctx context.Context, id int64) (*model.Giveaway, error) {
	query := `
		SELECT id, title, description, prize, COALESCE(image, ''), start_date, end_date, created_at
		FROM giveaways WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var g model.Giveaway
	if err := row.Scan(
		&g.ID, &g.Title, &g.Description, &g.Prize, &g.Image,
		&g.StartDate, &g.EndDate, &g.CreatedAt,
	); err != nil {
		return nil, ErrGiveawayNotFound
	}
	return &g, nil
}

func (r *repository) UpdateGiveaway(ctx context.Context, g *model.Giveaway) error {
	query := `
		UPDATE giveaways
		SET title = $1, description = $2, prize = $3, image = NULLIF($4, ''),
		    start_date = $5, end_date = $6
		WHERE id = $7
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		g.Title, g.Description, g.Prize, g.Image, g.StartDate, g.EndDate, g.ID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrGiveawayNotFound
		}
		return fmt.Errorf("failed to update giveaway: %w", err)
	}
	return nil
}

// DeleteGiveawayTx removes the giveaway's entries and then the
// giveaway itself inside one transaction. The FK also cascades, so the
// explicit entry delete is redundant but harmless.
func (r *repository) DeleteGiveawayTx(ctx context.Context, id int64) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE giveaway_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete entries: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM giveaways WHERE id = $1`, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete giveaway: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return ErrGiveawayNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *repository) ListActiveGiveaways(ctx context.Context, now time.Time) ([]model.Giveaway, error) {
	query := `
		SELECT id, title, description, prize, COALESCE(image, ''), start_date, end_date, created_at
		FROM giveaways
		WHERE end_date >= $1
		ORDER BY end_date ASC
	`
	return r.scanGiveaways(ctx, query, now)
}

func (r *repository) ListPastGiveaways(ctx context.Context, now time.Time, limit int) ([]model.Giveaway, error) {
	query := `
		SELECT id, title, description, prize, COALESCE(image, ''), start_date, end_date, created_at
		FROM giveaways
		WHERE end_date < $1
		ORDER BY end_date DESC
	`
	if limit > 0 {
		return r.scanGiveaways(ctx, query+fmt.Sprintf(" LIMIT %d", limit), now)
	}
	return r.scanGiveaways(ctx, query, now)
}

func (r *repository) scanGiveaways(ctx context.Context, query string, args ...any) ([]model.Giveaway, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get giveaways: %w", err)
	}
	defer rows.Close()

	var giveaways []model.Giveaway
	for rows.Next() {
		var g model.Giveaway
		if err := rows.Scan(
			&g.ID, &g.Title, &g.Description, &g.Prize, &g.Image,
			&g.StartDate, &g.EndDate, &g.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan giveaway: %w", err)
		}
		giveaways = append(giveaways, g)
	}
	return giveaways, rows.Err()
}

func (r *repository) CountEntries(ctx context.Context, giveawayID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE giveaway_id = $1`, giveawayID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// CreateEntryTx checks the giveaway window and the one-entry-per-email
// rule inside one transaction before inserting. Email comparison is
// case-insensitive; the stored value keeps the submitted casing.
func (r *repository) CreateEntryTx(ctx context.Context, e *model.Entry, now time.Time) (int64, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var endDate time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT end_date FROM giveaways WHERE id = $1 FOR UPDATE
	`, e.GiveawayID).Scan(&endDate)
	if err != nil {
		_ = tx.Rollback()
		return 0, ErrGiveawayNotFound
	}

	if endDate.Before(now) {
		_ = tx.Rollback()
		return 0, ErrGiveawayClosed
	}

	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entries
		WHERE giveaway_id = $1 AND lower(email) = lower($2)
	`, e.GiveawayID, e.Email).Scan(&existing)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to check duplicate entry: %w", err)
	}
	if existing > 0 {
		_ = tx.Rollback()
		return 0, ErrDuplicateEntry
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO entries (giveaway_id, name, email, phone)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING id
	`, e.GiveawayID, e.Name, e.Email, e.Phone).Scan(&id)
	if err != nil {
		_ = tx.Rollback()
		// The unique index on (giveaway_id, lower(email)) closes the
		// race between two concurrent submissions.
		if strings.Contains(err.Error(), "duplicate key") {
			return 0, ErrDuplicateEntry
		}
		return 0, fmt.Errorf("failed to create entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

func (r *repository) GetEntryByID(ctx context.Context, id int64) (*model.Entry, error) {
	query := `
		SELECT id, giveaway_id, name, email, COALESCE(phone, ''), created_at
		FROM entries WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var e model.Entry
	if err := row.Scan(&e.ID, &e.GiveawayID, &e.Name, &e.Email, &e.Phone, &e.CreatedAt); err != nil {
		return nil, ErrEntryNotFound
	}
	return &e, nil
}

func (r *repository) DeleteEntry(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *repository) ListEntriesByGiveaway(ctx context.Context, giveawayID int64) ([]model.Entry, error) {
	query := `
		SELECT id, giveaway_id, name, email, COALESCE(phone, ''), created_at
		FROM entries
		WHERE giveaway_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, giveawayID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entries: %w", err)
	}
	defer rows.Close()

	var entries []model.Entry
	for rows.Next() {
		var e model.Entry
		if err := rows.Scan(&e.ID, &e.GiveawayID, &e.Name, &e.Email, &e.Phone, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) GetAdminByUsername(ctx context.Context, username string) (*model.Admin, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM admins WHERE username = $1
	`
	row := r.db.QueryRowContext(ctx, query, username)

	var a model.Admin
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return &a, nil
}

func (r *repository) CreateAdmin(ctx context.Context, a *model.Admin) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO admins (username, password_hash)
		VALUES ($1, $2)
		RETURNING id
	`, a.Username, a.PasswordHash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create admin: %w", err)
	}
	return id, nil
}

func (r *repository) DeleteAdminByUsername(ctx context.Context, username string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM admins WHERE username = $1`, username); err != nil {
		return fmt.Errorf("failed to delete admin: %w", err)
	}
	return nil
}
