package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/terra-clan/checklist-engine/internal/models"
)

// sqliteTimeLayout is fixed-width so stored timestamps sort and compare as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepository implements Repository on a local SQLite database.
// It backs development setups and the test suites.
type SQLiteRepository struct {
	db *sqlx.DB
}

// NewSQLiteRepository opens (or creates) a SQLite database at path and
// applies pending migrations. Use ":memory:" for a throwaway database.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := RunSQLiteMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Ping checks database connectivity
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func sqliteTime(t time.Time) interface{} {
	return t.UTC().Format(sqliteTimeLayout)
}

func sqliteNullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return sqliteTime(*t)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseSQLiteNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseSQLiteTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// sqliteError maps driver errors to storage sentinels
func sqliteError(err error) error {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return err
	}
	switch code := sqlErr.Code(); {
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %s", ErrConflict, sqlErr.Error())
	case code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqlErr.Error(), "UNIQUE"):
		return fmt.Errorf("%w: %s", ErrConflict, sqlErr.Error())
	}
	return err
}

func checkAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Templates ---

// CreateTemplate inserts a new template
func (r *SQLiteRepository) CreateTemplate(ctx context.Context, t *models.Template) error {
	categoriesJSON, err := marshalCategories(t.Categories)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, nullString(t.Description), t.EstimatedDays,
		string(categoriesJSON), sqliteTime(t.CreatedAt), sqliteTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating template: %w", sqliteError(err))
	}
	return nil
}

func (r *SQLiteRepository) getTemplateWhere(ctx context.Context, where string, arg interface{}) (*models.Template, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE `+where, arg)
	t, err := scanSQLiteTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting template: %w", err)
	}
	return t, nil
}

// GetTemplate retrieves a template by ID
func (r *SQLiteRepository) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	return r.getTemplateWhere(ctx, `id = ?`, id)
}

// GetTemplateByName retrieves the most recent template with the given name
func (r *SQLiteRepository) GetTemplateByName(ctx context.Context, name string) (*models.Template, error) {
	return r.getTemplateWhere(ctx, `name = ? ORDER BY created_at DESC LIMIT 1`, name)
}

// UpdateTemplate replaces a template's editable fields
func (r *SQLiteRepository) UpdateTemplate(ctx context.Context, t *models.Template) error {
	categoriesJSON, err := marshalCategories(t.Categories)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE templates
		SET name = ?, description = ?, estimated_days = ?, categories = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, nullString(t.Description), t.EstimatedDays,
		string(categoriesJSON), sqliteTime(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating template %s: %w", t.ID, sqliteError(err))
	}
	return checkAffected(result)
}

// DeleteTemplate removes a template by ID
func (r *SQLiteRepository) DeleteTemplate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting template %s: %w", id, err)
	}
	return checkAffected(result)
}

// ListTemplates returns all templates, newest first
func (r *SQLiteRepository) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.Template
	for rows.Next() {
		t, err := scanSQLiteTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}

	return templates, rows.Err()
}

// sqliteScanner is satisfied by both *sqlx.Row and *sqlx.Rows
type sqliteScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteTemplate(row sqliteScanner) (*models.Template, error) {
	var (
		t              models.Template
		description    sql.NullString
		categoriesJSON string
		createdAt      string
		updatedAt      string
	)

	err := row.Scan(&t.ID, &t.Name, &description, &t.EstimatedDays, &categoriesJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.Description = description.String
	if t.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}
	if t.Categories, err = unmarshalCategories([]byte(categoriesJSON)); err != nil {
		return nil, err
	}

	return &t, nil
}

// --- Checklists ---

// CreateChecklist inserts a new checklist
func (r *SQLiteRepository) CreateChecklist(ctx context.Context, c *models.Checklist) error {
	categoriesJSON, err := marshalCategories(c.Categories)
	if err != nil {
		return err
	}
	statesJSON, err := marshalTaskStates(c.TaskStates)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO checklists (`+checklistColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TemplateID, c.ProjectName, c.MachineType, c.SerialNumber,
		c.CustomerName, c.CustomerEmail, c.CustomerPhone, c.PublicToken,
		string(c.Status), sqliteNullTime(c.DueDate),
		string(categoriesJSON), string(statesJSON),
		sqliteTime(c.CreatedAt), sqliteTime(c.UpdatedAt), sqliteNullTime(c.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("creating checklist: %w", sqliteError(err))
	}
	return nil
}

func (r *SQLiteRepository) getChecklistWhere(ctx context.Context, where string, arg interface{}) (*models.Checklist, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+checklistColumns+` FROM checklists WHERE `+where, arg)
	c, err := scanSQLiteChecklist(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting checklist: %w", err)
	}
	return c, nil
}

// GetChecklist retrieves a checklist by internal ID
func (r *SQLiteRepository) GetChecklist(ctx context.Context, id string) (*models.Checklist, error) {
	return r.getChecklistWhere(ctx, `id = ?`, id)
}

// GetChecklistByToken retrieves a checklist by its public token
func (r *SQLiteRepository) GetChecklistByToken(ctx context.Context, token string) (*models.Checklist, error) {
	return r.getChecklistWhere(ctx, `public_token = ?`, token)
}

// MarkChecklistOpened moves a sent checklist to in_progress. It reports
// false when the checklist was no longer sent.
func (r *SQLiteRepository) MarkChecklistOpened(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE checklists SET status = 'in_progress', updated_at = ? WHERE id = ? AND status = 'sent'`,
		sqliteTime(at), id,
	)
	if err != nil {
		return false, fmt.Errorf("marking checklist %s opened: %w", id, sqliteError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateChecklistStatus sets only the status column. Completed checklists
// are left alone and reported as ErrNotFound.
func (r *SQLiteRepository) UpdateChecklistStatus(ctx context.Context, id string, status models.ChecklistStatus, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE checklists SET status = ?, updated_at = ? WHERE id = ? AND status <> 'completed'`,
		string(status), sqliteTime(updatedAt), id,
	)
	if err != nil {
		return fmt.Errorf("updating checklist status %s: %w", id, sqliteError(err))
	}
	return checkAffected(result)
}

// SaveChecklistProgress writes task states, status and (optionally) completed_at
func (r *SQLiteRepository) SaveChecklistProgress(ctx context.Context, id string, upd ChecklistProgressUpdate) error {
	statesJSON, err := marshalTaskStates(upd.TaskStates)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE checklists
		SET task_states = ?, status = ?, completed_at = COALESCE(?, completed_at), updated_at = ?
		WHERE id = ?`,
		string(statesJSON), string(upd.Status), sqliteNullTime(upd.CompletedAt), sqliteTime(upd.UpdatedAt), id,
	)
	if err != nil {
		return fmt.Errorf("saving checklist progress %s: %w", id, sqliteError(err))
	}
	return checkAffected(result)
}

// DeleteChecklist removes a checklist by ID
func (r *SQLiteRepository) DeleteChecklist(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM checklists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting checklist %s: %w", id, err)
	}
	return checkAffected(result)
}

// ListChecklists returns checklists matching filters, newest first
func (r *SQLiteRepository) ListChecklists(ctx context.Context, filters models.ChecklistFilters, now time.Time) ([]*models.Checklist, error) {
	query, args := checklistListQuery(filters, now, sqliteTime)
	return r.queryChecklists(ctx, query, args...)
}

// CountMatchingChecklists counts checklists matching filters, ignoring
// limit and offset
func (r *SQLiteRepository) CountMatchingChecklists(ctx context.Context, filters models.ChecklistFilters, now time.Time) (int, error) {
	query, args := checklistCountQuery(filters, now, sqliteTime)

	var total int
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("counting matching checklists: %w", err)
	}
	return total, nil
}

// GetOverdueChecklists returns open checklists whose due date has passed
func (r *SQLiteRepository) GetOverdueChecklists(ctx context.Context, now time.Time) ([]*models.Checklist, error) {
	query, args := overdueCandidatesQuery(now, sqliteTime)
	return r.queryChecklists(ctx, query, args...)
}

// CountChecklists returns dashboard counters
func (r *SQLiteRepository) CountChecklists(ctx context.Context, now time.Time) (models.ChecklistStats, error) {
	query, args := checklistStatsQuery(now, sqliteTime)

	var stats models.ChecklistStats
	err := r.db.QueryRowxContext(ctx, query, args...).Scan(
		&stats.Total, &stats.InProgress, &stats.Completed, &stats.Overdue,
	)
	if err != nil {
		return stats, fmt.Errorf("counting checklists: %w", err)
	}
	return stats, nil
}

func (r *SQLiteRepository) queryChecklists(ctx context.Context, query string, args ...interface{}) ([]*models.Checklist, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying checklists: %w", err)
	}
	defer rows.Close()

	var checklists []*models.Checklist
	for rows.Next() {
		c, err := scanSQLiteChecklist(rows)
		if err != nil {
			return nil, err
		}
		checklists = append(checklists, c)
	}

	return checklists, rows.Err()
}

func scanSQLiteChecklist(row sqliteScanner) (*models.Checklist, error) {
	var (
		c              models.Checklist
		templateID     sql.NullString
		phone          sql.NullString
		status         string
		dueDate        sql.NullString
		categoriesJSON string
		statesJSON     string
		createdAt      string
		updatedAt      string
		completedAt    sql.NullString
	)

	err := row.Scan(
		&c.ID, &templateID, &c.ProjectName, &c.MachineType, &c.SerialNumber,
		&c.CustomerName, &c.CustomerEmail, &phone, &c.PublicToken,
		&status, &dueDate, &categoriesJSON, &statesJSON,
		&createdAt, &updatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = models.ChecklistStatus(status)
	if templateID.Valid {
		c.TemplateID = &templateID.String
	}
	if phone.Valid {
		c.CustomerPhone = &phone.String
	}
	if c.DueDate, err = parseSQLiteNullTime(dueDate); err != nil {
		return nil, err
	}
	if c.CompletedAt, err = parseSQLiteNullTime(completedAt); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}
	if c.Categories, err = unmarshalCategories([]byte(categoriesJSON)); err != nil {
		return nil, err
	}
	if c.TaskStates, err = unmarshalTaskStates([]byte(statesJSON)); err != nil {
		return nil, err
	}

	return &c, nil
}

// --- Admin users ---

// CreateAdminUser inserts an admin user; usernames are stored normalized
func (r *SQLiteRepository) CreateAdminUser(ctx context.Context, u *models.AdminUser) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_users (`+adminUserColumns+`) VALUES (?, ?, ?, ?, ?)`,
		u.ID, models.NormalizeUsername(u.Username), u.DisplayName, u.PasswordHash, sqliteTime(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating admin user: %w", sqliteError(err))
	}
	return nil
}

func (r *SQLiteRepository) getAdminUserWhere(ctx context.Context, where string, arg interface{}) (*models.AdminUser, error) {
	var (
		u         models.AdminUser
		createdAt string
	)
	err := r.db.QueryRowxContext(ctx, `SELECT `+adminUserColumns+` FROM admin_users WHERE `+where, arg).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting admin user: %w", err)
	}
	if u.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetAdminUser retrieves an admin user by ID
func (r *SQLiteRepository) GetAdminUser(ctx context.Context, id string) (*models.AdminUser, error) {
	return r.getAdminUserWhere(ctx, `id = ?`, id)
}

// GetAdminUserByUsername retrieves an admin user by case-insensitive username
func (r *SQLiteRepository) GetAdminUserByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	return r.getAdminUserWhere(ctx, `LOWER(username) = ?`, models.NormalizeUsername(username))
}
