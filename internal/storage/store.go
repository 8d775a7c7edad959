package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
)

// Store bundles the pool and its repositories behind the surface the rest of
// the process uses.
type Store struct {
	pool        *pgxpool.Pool
	UserQueries *UserQueryRepository
	Forecasts   *ForecastRepository
	log         *logger.Logger
}

func NewStore(pool *pgxpool.Pool, log *logger.Logger) *Store {
	return &Store{
		pool:        pool,
		UserQueries: NewUserQueryRepository(pool),
		Forecasts:   NewForecastRepository(pool),
		log:         log,
	}
}

// CompleteUserQuery writes a session's terminal response. Workflows run
// detached from the request that triggered them, so the write acquires its
// own connection from the pool and releases it on every path instead of
// borrowing one scoped to the original request.
func (s *Store) CompleteUserQuery(ctx context.Context, sessionID, responseText string) error {
	began := time.Now()

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		s.log.LogService("storage", "complete_user_query", time.Since(began), map[string]interface{}{
			"session_id": sessionID,
		}, err)
		return err
	}
	defer conn.Release()

	err = NewUserQueryRepository(conn).Complete(ctx, sessionID, responseText)

	s.log.LogService("storage", "complete_user_query", time.Since(began), map[string]interface{}{
		"session_id": sessionID,
		"completed":  err == nil,
	}, err)

	return err
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}
