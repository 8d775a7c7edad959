package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
)

// fakeDBTX scripts the three DBTX calls and records what SQL ran.
type fakeDBTX struct {
	execSQL  []string
	execArgs [][]any
	execTag  pgconn.CommandTag
	execErr  error

	querySQL  []string
	queryArgs [][]any
	row       pgx.Row
}

func (f *fakeDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, arguments)
	return f.execTag, f.execErr
}

func (f *fakeDBTX) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("Query not scripted")
}

func (f *fakeDBTX) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.querySQL = append(f.querySQL, sql)
	f.queryArgs = append(f.queryArgs, args)
	return f.row
}

type fakeRow struct {
	scanFn func(dest ...any) error
}

func (r *fakeRow) Scan(dest ...any) error {
	return r.scanFn(dest...)
}

func TestUserQueryCreateAssignsIDAndTimestamp(t *testing.T) {
	created := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	db := &fakeDBTX{
		row: &fakeRow{scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 42
			*dest[1].(*time.Time) = created
			return nil
		}},
	}
	repo := NewUserQueryRepository(db)

	query := &UserQuery{
		SessionID: "session-1",
		UserID:    "user-1",
		QueryText: "will it rain this week?",
	}
	if err := repo.Create(context.Background(), query); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if query.ID != 42 {
		t.Errorf("expected assigned ID 42, got %d", query.ID)
	}
	if !query.CreatedAt.Equal(created) {
		t.Errorf("expected created_at %v, got %v", created, query.CreatedAt)
	}
	if len(db.querySQL) != 1 || !strings.Contains(db.querySQL[0], "INSERT INTO user_queries") {
		t.Errorf("expected one insert into user_queries, got %v", db.querySQL)
	}
	if got := db.queryArgs[0]; len(got) != 3 || got[0] != "session-1" {
		t.Errorf("unexpected insert args: %v", got)
	}
}

func TestUserQueryCompleteSetsResponseAndFlag(t *testing.T) {
	db := &fakeDBTX{execTag: pgconn.NewCommandTag("UPDATE 1")}
	repo := NewUserQueryRepository(db)

	if err := repo.Complete(context.Background(), "session-1", "light rain expected"); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	if len(db.execSQL) != 1 {
		t.Fatalf("expected one exec, got %d", len(db.execSQL))
	}
	sql := db.execSQL[0]
	for _, fragment := range []string{"UPDATE user_queries", "response_text", "response_time_seconds", "completed = TRUE"} {
		if !strings.Contains(sql, fragment) {
			t.Errorf("update statement missing %q:\n%s", fragment, sql)
		}
	}
	if args := db.execArgs[0]; args[0] != "session-1" || args[1] != "light rain expected" {
		t.Errorf("unexpected update args: %v", args)
	}
}

func TestUserQueryCompleteUnknownSession(t *testing.T) {
	db := &fakeDBTX{execTag: pgconn.NewCommandTag("UPDATE 0")}
	repo := NewUserQueryRepository(db)

	err := repo.Complete(context.Background(), "missing", "text")
	if err == nil {
		t.Fatal("expected error for unknown session")
	}
	if !models.IsErrorType(err, models.ErrorTypeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestUserQueryGetBySessionID(t *testing.T) {
	created := time.Date(2026, 8, 29, 9, 30, 0, 0, time.UTC)
	response := "dry week ahead"
	elapsed := 4.2
	db := &fakeDBTX{
		row: &fakeRow{scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 7
			*dest[1].(*string) = "session-7"
			*dest[2].(*string) = "user-1"
			*dest[3].(*string) = "rain?"
			*dest[4].(**string) = &response
			*dest[5].(**float64) = &elapsed
			*dest[6].(*bool) = true
			*dest[7].(*time.Time) = created
			return nil
		}},
	}
	repo := NewUserQueryRepository(db)

	query, err := repo.GetBySessionID(context.Background(), "session-7")
	if err != nil {
		t.Fatalf("GetBySessionID returned error: %v", err)
	}
	if query.SessionID != "session-7" || !query.Completed {
		t.Errorf("unexpected record: %+v", query)
	}
	if query.ResponseText == nil || *query.ResponseText != response {
		t.Errorf("expected response text %q, got %v", response, query.ResponseText)
	}
	if query.ResponseTimeSeconds == nil || *query.ResponseTimeSeconds != elapsed {
		t.Errorf("expected response time %v, got %v", elapsed, query.ResponseTimeSeconds)
	}
}

func TestUserQueryGetBySessionIDNotFound(t *testing.T) {
	db := &fakeDBTX{
		row: &fakeRow{scanFn: func(dest ...any) error {
			return pgx.ErrNoRows
		}},
	}
	repo := NewUserQueryRepository(db)

	_, err := repo.GetBySessionID(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected not-found error")
	}
	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Code != "SESSION_NOT_FOUND" {
		t.Errorf("expected SESSION_NOT_FOUND, got %v", err)
	}
}

func TestUserQueryGetLatestByUserIDOrdersByRecency(t *testing.T) {
	db := &fakeDBTX{
		row: &fakeRow{scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 9
			*dest[1].(*string) = "session-9"
			*dest[2].(*string) = "user-2"
			*dest[3].(*string) = "monthly outlook?"
			*dest[6].(*bool) = false
			*dest[7].(*time.Time) = time.Now()
			return nil
		}},
	}
	repo := NewUserQueryRepository(db)

	query, err := repo.GetLatestByUserID(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("GetLatestByUserID returned error: %v", err)
	}
	if query.SessionID != "session-9" {
		t.Errorf("unexpected record: %+v", query)
	}

	sql := db.querySQL[0]
	if !strings.Contains(sql, "ORDER BY created_at DESC") || !strings.Contains(sql, "LIMIT 1") {
		t.Errorf("latest query must order by recency and limit to one row:\n%s", sql)
	}
}
