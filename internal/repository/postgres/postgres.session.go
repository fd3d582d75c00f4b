// FilePath: internal/repository/postgres/postgres.session.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/database"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/errors"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/models"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/repository"
)

const sessionDateLayout = "2006-01-02"

type SessionRepo struct {
	PostgresBaseRepo
}

func NewSessionRepository(db database.DB) *SessionRepo {
	repo := &SessionRepo{PostgresBaseRepo: PostgresBaseRepo{db: db}}
	repo.initializeSchema()
	return repo
}

// Create races concurrent first-wakes on the (site_id, session_date) unique
// index. The loser of the race affects zero rows and the caller falls back to
// a read.
func (r *SessionRepo) Create(ctx context.Context, session *models.SiteSession) (bool, error) {
	query := `
		INSERT INTO site_sessions (
			id, site_id, session_date, starts_at, ends_at,
			expected_wake_count, completed_count, failed_count, extra_count,
			status, created_at, updated_at
		) VALUES (
			:id, :site_id, :session_date, :starts_at, :ends_at,
			:expected_wake_count, :completed_count, :failed_count, :extra_count,
			:status, :created_at, :updated_at
		)
		ON CONFLICT (site_id, session_date) DO NOTHING`

	result, err := r.db.GetDB().NamedExecContext(ctx, query, session)
	if err != nil {
		return false, errors.NewDatabaseError("failed to create session", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewDatabaseError("failed to read insert result", err)
	}
	return rows == 1, nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*models.SiteSession, error) {
	session := &models.SiteSession{}
	query := `SELECT * FROM site_sessions WHERE id = $1`

	err := r.db.GetDB().GetContext(ctx, session, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.NewDatabaseError("failed to get session", err)
	}
	return session, nil
}

func (r *SessionRepo) GetBySiteAndDate(ctx context.Context, siteID string, date time.Time) (*models.SiteSession, error) {
	session := &models.SiteSession{}
	query := `SELECT * FROM site_sessions WHERE site_id = $1 AND session_date = $2::date`

	err := r.db.GetDB().GetContext(ctx, session, query, siteID, date.Format(sessionDateLayout))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.NewDatabaseError("failed to get session", err)
	}
	return session, nil
}

// MarkInProgress flips a pending session on its first payload. Calling it on
// a session already in progress is a no-op.
func (r *SessionRepo) MarkInProgress(ctx context.Context, id string) error {
	query := `
		UPDATE site_sessions
		SET status = 'in_progress', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	if _, err := r.db.GetDB().ExecContext(ctx, query, id); err != nil {
		return errors.NewDatabaseError("failed to mark session in progress", err)
	}
	return nil
}

// Lock finalizes the session for (site, date). Locking an already locked
// session is a no-op; locking a missing one is ErrNotFound.
func (r *SessionRepo) Lock(ctx context.Context, siteID string, date time.Time) error {
	query := `
		UPDATE site_sessions
		SET status = 'locked', updated_at = NOW()
		WHERE site_id = $1 AND session_date = $2::date AND status <> 'locked'`

	result, err := r.db.GetDB().ExecContext(ctx, query, siteID, date.Format(sessionDateLayout))
	if err != nil {
		return errors.NewDatabaseError("failed to lock session", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := r.GetBySiteAndDate(ctx, siteID, date); err != nil {
			return err
		}
	}
	return nil
}

// LockExpired locks every session whose end instant has passed and returns
// how many it locked.
func (r *SessionRepo) LockExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE site_sessions
		SET status = 'locked', updated_at = NOW()
		WHERE ends_at <= $1 AND status <> 'locked'`

	result, err := r.db.GetDB().ExecContext(ctx, query, now)
	if err != nil {
		return 0, errors.NewDatabaseError("failed to lock expired sessions", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewDatabaseError("failed to read lock result", err)
	}
	return rows, nil
}

func (r *SessionRepo) IncrementCompleted(ctx context.Context, id string) error {
	return r.increment(ctx, id, "completed_count = completed_count + 1")
}

func (r *SessionRepo) IncrementFailed(ctx context.Context, id string) error {
	return r.increment(ctx, id, "failed_count = failed_count + 1")
}

func (r *SessionRepo) IncrementExtra(ctx context.Context, id string) error {
	return r.increment(ctx, id, "extra_count = extra_count + 1")
}

// MoveFailedToCompleted atomically shifts one failed count to completed when
// a previously failed image completes on retry. It reports whether a count
// was actually moved; false with a nil error means the failed counter was
// already zero, which the caller surfaces as an invariant violation.
func (r *SessionRepo) MoveFailedToCompleted(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE site_sessions
		SET failed_count = failed_count - 1,
		    completed_count = completed_count + 1,
		    updated_at = NOW()
		WHERE id = $1 AND status <> 'locked' AND failed_count > 0`

	result, err := r.db.GetDB().ExecContext(ctx, query, id)
	if err != nil {
		return false, errors.NewDatabaseError("failed to reconcile session counters", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 1 {
		return true, nil
	}
	if err := r.classifyMiss(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// increment applies one atomic counter bump, rejected once the session is
// locked.
func (r *SessionRepo) increment(ctx context.Context, id, setClause string) error {
	query := fmt.Sprintf(`
		UPDATE site_sessions
		SET %s, updated_at = NOW()
		WHERE id = $1 AND status <> 'locked'`, setClause)

	result, err := r.db.GetDB().ExecContext(ctx, query, id)
	if err != nil {
		return errors.NewDatabaseError("failed to update session counter", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return r.classifyMiss(ctx, id)
	}
	return nil
}

// classifyMiss explains a zero-row counter update: locked session or missing
// row.
func (r *SessionRepo) classifyMiss(ctx context.Context, id string) error {
	var status string
	err := r.db.GetDB().GetContext(ctx, &status, `SELECT status FROM site_sessions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return repository.ErrNotFound
	}
	if err != nil {
		return errors.NewDatabaseError("failed to read session status", err)
	}
	if status == models.SessionStatusLocked {
		return repository.ErrSessionLocked
	}
	return nil
}

func (r *SessionRepo) initializeSchema() error {
	query := `
        CREATE UNIQUE INDEX IF NOT EXISTS idx_site_sessions_site_date
        ON site_sessions(site_id, session_date)`

	_, err := r.db.GetDB().Exec(query)
	if err != nil {
		return errors.NewDatabaseError("failed to create index", err)
	}
	return nil
}
