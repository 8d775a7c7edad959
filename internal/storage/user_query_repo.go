package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
)

var ErrSessionNotFound = models.NewValidationError("SESSION_NOT_FOUND", "no session with that id")

// UserQuery is one persisted chat session: the question as asked, and the
// terminal response text once the workflow finishes.
type UserQuery struct {
	ID                  int64     `json:"id"`
	SessionID           string    `json:"session_id"`
	UserID              string    `json:"user_id"`
	QueryText           string    `json:"query_text"`
	ResponseText        *string   `json:"response_text,omitempty"`
	ResponseTimeSeconds *float64  `json:"response_time_seconds,omitempty"`
	Completed           bool      `json:"completed"`
	CreatedAt           time.Time `json:"created_at"`
}

type UserQueryRepository struct {
	db DBTX
}

func NewUserQueryRepository(db DBTX) *UserQueryRepository {
	return &UserQueryRepository{db: db}
}

const userQueryColumns = `id, session_id, user_id, query_text, response_text,
	response_time_seconds, completed, created_at`

func scanUserQuery(row pgx.Row) (*UserQuery, error) {
	var query UserQuery
	err := row.Scan(
		&query.ID,
		&query.SessionID,
		&query.UserID,
		&query.QueryText,
		&query.ResponseText,
		&query.ResponseTimeSeconds,
		&query.Completed,
		&query.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &query, nil
}

// Create inserts the session row at dispatch time, before the workflow runs.
// The response fields stay NULL until Complete.
func (r *UserQueryRepository) Create(ctx context.Context, query *UserQuery) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO user_queries (session_id, user_id, query_text)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		query.SessionID,
		query.UserID,
		query.QueryText,
	)
	if err := row.Scan(&query.ID, &query.CreatedAt); err != nil {
		return models.NewExternalError("DB_INSERT_FAILED", "failed to create session record").WithCause(err)
	}
	return nil
}

// Complete writes the terminal response exactly once: response text, elapsed
// seconds since the row was created, completed flag. The workflow engine
// calls this on every exit path, success or failure.
func (r *UserQueryRepository) Complete(ctx context.Context, sessionID, responseText string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_queries
		 SET response_text = $2,
		     response_time_seconds = EXTRACT(EPOCH FROM (NOW() - created_at)),
		     completed = TRUE
		 WHERE session_id = $1`,
		sessionID,
		responseText,
	)
	if err != nil {
		return models.NewExternalError("DB_UPDATE_FAILED", "failed to persist session response").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound.WithMetadata("session_id", sessionID)
	}
	return nil
}

func (r *UserQueryRepository) GetBySessionID(ctx context.Context, sessionID string) (*UserQuery, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userQueryColumns+`
		 FROM user_queries
		 WHERE session_id = $1`,
		sessionID,
	)

	query, err := scanUserQuery(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound.WithMetadata("session_id", sessionID)
		}
		return nil, models.NewExternalError("DB_QUERY_FAILED", "failed to read session record").WithCause(err)
	}
	return query, nil
}

// GetLatestByUserID returns the user's most recent session, completed or not.
func (r *UserQueryRepository) GetLatestByUserID(ctx context.Context, userID string) (*UserQuery, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userQueryColumns+`
		 FROM user_queries
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
	)

	query, err := scanUserQuery(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound.WithMetadata("user_id", userID)
		}
		return nil, models.NewExternalError("DB_QUERY_FAILED", "failed to read session record").WithCause(err)
	}
	return query, nil
}
