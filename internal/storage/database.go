package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/habbit/internal/auth"
	"github.com/conorfennell/habbit/internal/domain"
	"github.com/conorfennell/habbit/internal/progress"
	"github.com/conorfennell/habbit/internal/transform"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const habitColumns = `id, user_id, name, description, frequency, start_date, end_date,
	time_of_day, color, icon, is_archived, goal, created_at, updated_at`

const statisticsColumns = `habit_id, user_id, name, completed_count, failed_count,
	skipped_count, completion_rate`

// DB is a Store backed by SQLite or PostgreSQL.
type DB struct {
	conn   *sql.DB
	driver string
	now    func() time.Time
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(driver, dsn string) (*DB, error) {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = sqliteSchema
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY and keeps :memory: databases shared.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: conn, driver: driver, now: time.Now}, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders into the driver's form.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (db *DB) timestamp() time.Time {
	return db.now().UTC()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHabit(s scanner) (transform.HabitRow, error) {
	var r transform.HabitRow
	err := s.Scan(
		&r.ID,
		&r.UserID,
		&r.Name,
		&r.Description,
		&r.Frequency,
		&r.StartDate,
		&r.EndDate,
		&r.TimeOfDay,
		&r.Color,
		&r.Icon,
		&r.IsArchived,
		&r.Goal,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func scanStatistics(s scanner) (transform.StatisticsRow, error) {
	var r transform.StatisticsRow
	err := s.Scan(
		&r.HabitID,
		&r.UserID,
		&r.Name,
		&r.CompletedCount,
		&r.FailedCount,
		&r.SkippedCount,
		&r.CompletionRate,
	)
	return r, err
}

// ListHabits returns the user's habits newest first, with progress and statistics.
func (db *DB) ListHabits(ctx context.Context, userID string) ([]domain.Habit, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT `+habitColumns+`
		FROM habits WHERE user_id = ?
		ORDER BY created_at DESC, id
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	defer rows.Close()

	var habitRows []transform.HabitRow
	for rows.Next() {
		r, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan habit row: %w", err)
		}
		habitRows = append(habitRows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}

	progressRows, err := db.progressForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	statsRows, err := db.statisticsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	byHabit := transform.GroupProgress(progressRows)
	statsByHabit := transform.IndexStatistics(statsRows)
	habits := make([]domain.Habit, 0, len(habitRows))
	for _, r := range habitRows {
		habits = append(habits, transform.ToHabit(r, byHabit[r.ID], statsByHabit[r.ID]))
	}
	return habits, nil
}

func (db *DB) progressForUser(ctx context.Context, userID string) ([]transform.ProgressRow, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT p.habit_id, p.date, p.status, p.created_at, p.updated_at
		FROM habit_progress p
		JOIN habits h ON h.id = p.habit_id
		WHERE h.user_id = ?
		ORDER BY p.created_at, p.date
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()
	return scanProgressRows(rows)
}

func (db *DB) progressForHabit(ctx context.Context, habitID string) ([]transform.ProgressRow, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT habit_id, date, status, created_at, updated_at
		FROM habit_progress WHERE habit_id = ?
		ORDER BY created_at, date
	`), habitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress for habit %s: %w", habitID, err)
	}
	defer rows.Close()
	return scanProgressRows(rows)
}

func scanProgressRows(rows *sql.Rows) ([]transform.ProgressRow, error) {
	var out []transform.ProgressRow
	for rows.Next() {
		var p transform.ProgressRow
		if err := rows.Scan(&p.HabitID, &p.Date, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan progress row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read progress rows: %w", err)
	}
	return out, nil
}

func (db *DB) statisticsForUser(ctx context.Context, userID string) ([]transform.StatisticsRow, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT `+statisticsColumns+`
		FROM habit_statistics WHERE user_id = ?
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list statistics: %w", err)
	}
	defer rows.Close()

	var out []transform.StatisticsRow
	for rows.Next() {
		r, err := scanStatistics(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan statistics row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read statistics rows: %w", err)
	}
	return out, nil
}

// GetHabit returns one habit with its progress and statistics.
func (db *DB) GetHabit(ctx context.Context, userID, id string) (*domain.Habit, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT `+habitColumns+`
		FROM habits WHERE id = ? AND user_id = ?
	`), id, userID)
	r, err := scanHabit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("habit %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get habit %s: %w", id, err)
	}

	progressRows, err := db.progressForHabit(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := db.statisticsRow(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	h := transform.ToHabit(r, progressRows, stats)
	return &h, nil
}

// CreateHabit inserts a new habit with no progress.
func (db *DB) CreateHabit(ctx context.Context, userID string, in domain.HabitInput) (*domain.Habit, error) {
	r := transform.FromInput(uuid.NewString(), userID, in, db.timestamp())
	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO habits (`+habitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		r.ID,
		r.UserID,
		r.Name,
		r.Description,
		r.Frequency,
		r.StartDate,
		r.EndDate,
		r.TimeOfDay,
		r.Color,
		r.Icon,
		r.IsArchived,
		r.Goal,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert habit: %w", err)
	}
	return db.GetHabit(ctx, userID, r.ID)
}

// touch locks in the habit's next updated_at inside tx. It fails with
// ErrNotFound when the habit does not belong to the user.
func (db *DB) touch(ctx context.Context, tx *sql.Tx, userID, id string) (time.Time, error) {
	var h domain.Habit
	err := tx.QueryRowContext(ctx, db.rebind(`
		SELECT created_at, updated_at FROM habits WHERE id = ? AND user_id = ?
	`), id, userID).Scan(&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, fmt.Errorf("habit %s: %w", id, ErrNotFound)
		}
		return time.Time{}, fmt.Errorf("failed to read habit %s: %w", id, err)
	}
	progress.Touch(&h, db.timestamp())
	return h.UpdatedAt.UTC(), nil
}

// UpdateHabit writes the fields set on p and advances updated_at.
func (db *DB) UpdateHabit(ctx context.Context, userID, id string, p domain.HabitPatch) (*domain.Habit, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	updatedAt, err := db.touch(ctx, tx, userID, id)
	if err != nil {
		return nil, err
	}

	cols := transform.PatchColumns(p)
	var sets []string
	var args []any
	for _, name := range transform.PatchOrder {
		if v, ok := cols[name]; ok {
			sets = append(sets, name+" = ?")
			args = append(args, v)
		}
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, updatedAt, id, userID)

	_, err = tx.ExecContext(ctx, db.rebind(`
		UPDATE habits SET `+strings.Join(sets, ", ")+`
		WHERE id = ? AND user_id = ?
	`), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update habit %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit habit update %s: %w", id, err)
	}
	return db.GetHabit(ctx, userID, id)
}

// DeleteHabit removes the habit's progress and then the habit, atomically.
func (db *DB) DeleteHabit(ctx context.Context, userID, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := db.touch(ctx, tx, userID, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, db.rebind(`
		DELETE FROM habit_progress WHERE habit_id = ?
	`), id); err != nil {
		return fmt.Errorf("failed to delete progress for habit %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, db.rebind(`
		DELETE FROM habits WHERE id = ? AND user_id = ?
	`), id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete habit %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("habit %s: %w", id, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit habit delete %s: %w", id, err)
	}
	return nil
}

// SetProgress upserts the (habit, date) entry, or deletes it for StatusNone,
// and advances the habit's updated_at in the same transaction.
func (db *DB) SetProgress(ctx context.Context, userID, habitID, date string, status domain.Status) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	updatedAt, err := db.touch(ctx, tx, userID, habitID)
	if err != nil {
		return err
	}

	if status == domain.StatusNone {
		_, err = tx.ExecContext(ctx, db.rebind(`
			DELETE FROM habit_progress WHERE habit_id = ? AND date = ?
		`), habitID, date)
	} else {
		now := db.timestamp()
		_, err = tx.ExecContext(ctx, db.rebind(`
			INSERT INTO habit_progress (habit_id, date, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (habit_id, date)
			DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
		`), habitID, date, string(status), now, now)
	}
	if err != nil {
		return fmt.Errorf("failed to set progress for habit %s on %s: %w", habitID, date, err)
	}

	if _, err := tx.ExecContext(ctx, db.rebind(`
		UPDATE habits SET updated_at = ? WHERE id = ?
	`), updatedAt, habitID); err != nil {
		return fmt.Errorf("failed to touch habit %s: %w", habitID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit progress for habit %s: %w", habitID, err)
	}
	return nil
}

// ProgressInRange returns entries with start <= date <= end ordered by date.
func (db *DB) ProgressInRange(ctx context.Context, userID, habitID, start, end string) ([]domain.ProgressEntry, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT p.date, p.status
		FROM habit_progress p
		JOIN habits h ON h.id = p.habit_id
		WHERE p.habit_id = ? AND h.user_id = ? AND p.date >= ? AND p.date <= ?
		ORDER BY p.date
	`), habitID, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get progress range for habit %s: %w", habitID, err)
	}
	defer rows.Close()

	entries := []domain.ProgressEntry{}
	for rows.Next() {
		var e domain.ProgressEntry
		if err := rows.Scan(&e.Date, &e.Status); err != nil {
			return nil, fmt.Errorf("failed to scan progress row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read progress rows: %w", err)
	}
	return entries, nil
}

// Statistics returns the view row for the habit, or nil when there is none.
func (db *DB) Statistics(ctx context.Context, userID, habitID string) (*domain.Statistics, error) {
	r, err := db.statisticsRow(ctx, userID, habitID)
	if err != nil || r == nil {
		return nil, err
	}
	return &domain.Statistics{
		CompletedCount: r.CompletedCount,
		FailedCount:    r.FailedCount,
		SkippedCount:   r.SkippedCount,
		CompletionRate: r.CompletionRate,
	}, nil
}

func (db *DB) statisticsRow(ctx context.Context, userID, habitID string) (*transform.StatisticsRow, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT `+statisticsColumns+`
		FROM habit_statistics WHERE habit_id = ? AND user_id = ?
	`), habitID, userID)
	r, err := scanStatistics(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get statistics for habit %s: %w", habitID, err)
	}
	return &r, nil
}

// CreateUser inserts a local account.
func (db *DB) CreateUser(ctx context.Context, u auth.UserRecord) error {
	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`), u.ID, u.Email, u.PasswordHash, u.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UserByEmail returns the account for email, or nil when there is none.
func (db *DB) UserByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	return db.findUser(ctx, "email", email)
}

// UserByID returns the account with id, or nil when there is none.
func (db *DB) UserByID(ctx context.Context, id string) (*auth.UserRecord, error) {
	return db.findUser(ctx, "id", id)
}

func (db *DB) findUser(ctx context.Context, column, value string) (*auth.UserRecord, error) {
	var u auth.UserRecord
	err := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT id, email, password_hash, created_at
		FROM users WHERE `+column+` = ?
	`), value).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to find user by %s: %w", column, err)
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			code == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
