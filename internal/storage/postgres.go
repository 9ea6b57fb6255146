package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/terra-clan/checklist-engine/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the connection pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func pgQuery(q string) string {
	return sqlx.Rebind(sqlx.DOLLAR, q)
}

func pgTime(t time.Time) interface{} {
	return t
}

// utcPtr returns t in UTC; timestamptz scans into the connection's zone
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// pgError maps driver errors to storage sentinels
func pgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case "22P02": // malformed UUID key can never match a row
			return ErrNotFound
		}
	}
	return err
}

// --- Templates ---

// CreateTemplate inserts a new template
func (r *PostgresRepository) CreateTemplate(ctx context.Context, t *models.Template) error {
	categoriesJSON, err := marshalCategories(t.Categories)
	if err != nil {
		return err
	}

	query := pgQuery(`
		INSERT INTO templates (` + templateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = r.pool.Exec(ctx, query,
		t.ID,
		t.Name,
		nullString(t.Description),
		t.EstimatedDays,
		categoriesJSON,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", pgError(err))
	}

	return nil
}

func (r *PostgresRepository) getTemplateWhere(ctx context.Context, where string, arg interface{}) (*models.Template, error) {
	query := pgQuery(`SELECT ` + templateColumns + ` FROM templates WHERE ` + where)
	t, err := scanTemplate(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if err = pgError(err); errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

// GetTemplate retrieves a template by ID
func (r *PostgresRepository) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	return r.getTemplateWhere(ctx, `id = ?`, id)
}

// GetTemplateByName retrieves the most recent template with the given name
func (r *PostgresRepository) GetTemplateByName(ctx context.Context, name string) (*models.Template, error) {
	return r.getTemplateWhere(ctx, `name = ? ORDER BY created_at DESC LIMIT 1`, name)
}

// UpdateTemplate replaces a template's editable fields
func (r *PostgresRepository) UpdateTemplate(ctx context.Context, t *models.Template) error {
	categoriesJSON, err := marshalCategories(t.Categories)
	if err != nil {
		return err
	}

	query := pgQuery(`
		UPDATE templates
		SET name = ?, description = ?, estimated_days = ?, categories = ?, updated_at = ?
		WHERE id = ?
	`)

	result, err := r.pool.Exec(ctx, query,
		t.Name,
		nullString(t.Description),
		t.EstimatedDays,
		categoriesJSON,
		t.UpdatedAt,
		t.ID,
	)
	if err != nil {
		if err = pgError(err); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update template: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteTemplate deletes a template by ID. Checklists keep their own copy.
func (r *PostgresRepository) DeleteTemplate(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, pgQuery(`DELETE FROM templates WHERE id = ?`), id)
	if err != nil {
		if err = pgError(err); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete template: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ListTemplates returns all templates, newest first
func (r *PostgresRepository) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

func scanTemplate(row pgx.Row) (*models.Template, error) {
	var t models.Template
	var description *string
	var categoriesJSON []byte

	err := row.Scan(
		&t.ID,
		&t.Name,
		&description,
		&t.EstimatedDays,
		&categoriesJSON,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description != nil {
		t.Description = *description
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()

	if t.Categories, err = unmarshalCategories(categoriesJSON); err != nil {
		return nil, err
	}

	return &t, nil
}

// --- Checklists ---

// CreateChecklist inserts a new checklist
func (r *PostgresRepository) CreateChecklist(ctx context.Context, c *models.Checklist) error {
	categoriesJSON, err := marshalCategories(c.Categories)
	if err != nil {
		return err
	}

	statesJSON, err := marshalTaskStates(c.TaskStates)
	if err != nil {
		return err
	}

	query := pgQuery(`
		INSERT INTO checklists (` + checklistColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = r.pool.Exec(ctx, query,
		c.ID,
		c.TemplateID,
		c.ProjectName,
		c.MachineType,
		c.SerialNumber,
		c.CustomerName,
		c.CustomerEmail,
		c.CustomerPhone,
		c.PublicToken,
		string(c.Status),
		c.DueDate,
		categoriesJSON,
		statesJSON,
		c.CreatedAt,
		c.UpdatedAt,
		c.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create checklist: %w", pgError(err))
	}

	return nil
}

func (r *PostgresRepository) getChecklistWhere(ctx context.Context, where string, arg interface{}) (*models.Checklist, error) {
	query := pgQuery(`SELECT ` + checklistColumns + ` FROM checklists WHERE ` + where)
	c, err := scanChecklist(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if err = pgError(err); errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get checklist: %w", err)
	}
	return c, nil
}

// GetChecklist retrieves a checklist by internal ID
func (r *PostgresRepository) GetChecklist(ctx context.Context, id string) (*models.Checklist, error) {
	return r.getChecklistWhere(ctx, `id = ?`, id)
}

// GetChecklistByToken retrieves a checklist by its public token
func (r *PostgresRepository) GetChecklistByToken(ctx context.Context, token string) (*models.Checklist, error) {
	return r.getChecklistWhere(ctx, `public_token = ?`, token)
}

// MarkChecklistOpened moves a sent checklist to in_progress. It reports
// false when the checklist was no longer sent.
func (r *PostgresRepository) MarkChecklistOpened(ctx context.Context, id string, at time.Time) (bool, error) {
	query := pgQuery(`UPDATE checklists SET status = 'in_progress', updated_at = ? WHERE id = ? AND status = 'sent'`)

	result, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		if err = pgError(err); errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to mark checklist opened: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// UpdateChecklistStatus sets only the status column. Completed checklists
// are left alone and reported as ErrNotFound.
func (r *PostgresRepository) UpdateChecklistStatus(ctx context.Context, id string, status models.ChecklistStatus, updatedAt time.Time) error {
	query := pgQuery(`UPDATE checklists SET status = ?, updated_at = ? WHERE id = ? AND status <> 'completed'`)

	result, err := r.pool.Exec(ctx, query, string(status), updatedAt, id)
	if err != nil {
		if err = pgError(err); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update checklist status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveChecklistProgress writes task states, status and (optionally) completed_at
func (r *PostgresRepository) SaveChecklistProgress(ctx context.Context, id string, upd ChecklistProgressUpdate) error {
	statesJSON, err := marshalTaskStates(upd.TaskStates)
	if err != nil {
		return err
	}

	query := pgQuery(`
		UPDATE checklists
		SET task_states = ?, status = ?, completed_at = COALESCE(?, completed_at), updated_at = ?
		WHERE id = ?
	`)

	result, err := r.pool.Exec(ctx, query, statesJSON, string(upd.Status), upd.CompletedAt, upd.UpdatedAt, id)
	if err != nil {
		if err = pgError(err); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to save checklist progress: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteChecklist deletes a checklist by ID
func (r *PostgresRepository) DeleteChecklist(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, pgQuery(`DELETE FROM checklists WHERE id = ?`), id)
	if err != nil {
		if err = pgError(err); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete checklist: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ListChecklists returns checklists matching filters, newest first
func (r *PostgresRepository) ListChecklists(ctx context.Context, filters models.ChecklistFilters, now time.Time) ([]*models.Checklist, error) {
	query, args := checklistListQuery(filters, now, pgTime)
	return r.queryChecklists(ctx, pgQuery(query), args...)
}

// CountMatchingChecklists counts checklists matching filters, ignoring
// limit and offset
func (r *PostgresRepository) CountMatchingChecklists(ctx context.Context, filters models.ChecklistFilters, now time.Time) (int, error) {
	query, args := checklistCountQuery(filters, now, pgTime)

	var total int
	if err := r.pool.QueryRow(ctx, pgQuery(query), args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count matching checklists: %w", err)
	}

	return total, nil
}

// GetOverdueChecklists returns open checklists whose due date has passed
func (r *PostgresRepository) GetOverdueChecklists(ctx context.Context, now time.Time) ([]*models.Checklist, error) {
	query, args := overdueCandidatesQuery(now, pgTime)
	return r.queryChecklists(ctx, pgQuery(query), args...)
}

// CountChecklists returns dashboard counters
func (r *PostgresRepository) CountChecklists(ctx context.Context, now time.Time) (models.ChecklistStats, error) {
	query, args := checklistStatsQuery(now, pgTime)

	var stats models.ChecklistStats
	err := r.pool.QueryRow(ctx, pgQuery(query), args...).Scan(
		&stats.Total,
		&stats.InProgress,
		&stats.Completed,
		&stats.Overdue,
	)
	if err != nil {
		return stats, fmt.Errorf("failed to count checklists: %w", err)
	}

	return stats, nil
}

func (r *PostgresRepository) queryChecklists(ctx context.Context, query string, args ...interface{}) ([]*models.Checklist, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query checklists: %w", err)
	}
	defer rows.Close()

	var checklists []*models.Checklist
	for rows.Next() {
		c, err := scanChecklist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checklist: %w", err)
		}
		checklists = append(checklists, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checklists: %w", err)
	}

	return checklists, nil
}

func scanChecklist(row pgx.Row) (*models.Checklist, error) {
	var c models.Checklist
	var statusStr string
	var categoriesJSON, statesJSON []byte

	err := row.Scan(
		&c.ID,
		&c.TemplateID,
		&c.ProjectName,
		&c.MachineType,
		&c.SerialNumber,
		&c.CustomerName,
		&c.CustomerEmail,
		&c.CustomerPhone,
		&c.PublicToken,
		&statusStr,
		&c.DueDate,
		&categoriesJSON,
		&statesJSON,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = models.ChecklistStatus(statusStr)
	c.DueDate = utcPtr(c.DueDate)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	c.CompletedAt = utcPtr(c.CompletedAt)

	if c.Categories, err = unmarshalCategories(categoriesJSON); err != nil {
		return nil, err
	}
	if c.TaskStates, err = unmarshalTaskStates(statesJSON); err != nil {
		return nil, err
	}

	return &c, nil
}

// --- Admin users ---

// CreateAdminUser inserts an admin user; usernames are stored normalized
func (r *PostgresRepository) CreateAdminUser(ctx context.Context, u *models.AdminUser) error {
	query := pgQuery(`INSERT INTO admin_users (` + adminUserColumns + `) VALUES (?, ?, ?, ?, ?)`)

	_, err := r.pool.Exec(ctx, query,
		u.ID,
		models.NormalizeUsername(u.Username),
		u.DisplayName,
		u.PasswordHash,
		u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", pgError(err))
	}

	return nil
}

func (r *PostgresRepository) getAdminUserWhere(ctx context.Context, where string, arg interface{}) (*models.AdminUser, error) {
	query := pgQuery(`SELECT ` + adminUserColumns + ` FROM admin_users WHERE ` + where)

	var u models.AdminUser
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Username,
		&u.DisplayName,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if err != nil {
		if err = pgError(err); errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get admin user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()

	return &u, nil
}

// GetAdminUser retrieves an admin user by ID
func (r *PostgresRepository) GetAdminUser(ctx context.Context, id string) (*models.AdminUser, error) {
	return r.getAdminUserWhere(ctx, `id = ?`, id)
}

// GetAdminUserByUsername retrieves an admin user by case-insensitive username
func (r *PostgresRepository) GetAdminUserByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	return r.getAdminUserWhere(ctx, `LOWER(username) = ?`, models.NormalizeUsername(username))
}

// Helper functions

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
