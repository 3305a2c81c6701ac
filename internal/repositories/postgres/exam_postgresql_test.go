package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cbt-portal/exam-service/internal/cache"
	"github.com/cbt-portal/exam-service/internal/models"
)

// newMockDB returns a gorm handle over a sqlmock connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm.Open failed: %v", err)
	}
	return db, mock
}

func newTestCacheManager(t *testing.T) *cache.CacheManager {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return cache.NewCacheManager(client)
}

func TestExamPostgreSQL_GetByID_TransactionalReadBypassesCache(t *testing.T) {
	cm := newTestCacheManager(t)
	db, mock := newMockDB(t)
	repo := NewExamPostgreSQL(db, cm)
	ctx := context.Background()

	// A cache entry that predates whatever the transaction has locked.
	if err := cm.Exam.Set(ctx, "id:1", &models.Exam{ID: 1, Title: "stale"}, time.Minute); err != nil {
		t.Fatalf("cache seed failed: %v", err)
	}

	// Without a transaction the cached row is served; no SQL expected.
	exam, err := repo.GetByID(ctx, nil, 1)
	if err != nil {
		t.Fatalf("cached GetByID failed: %v", err)
	}
	if exam.Title != "stale" {
		t.Errorf("cached read Title = %q, want %q", exam.Title, "stale")
	}

	// A transactional reader must hit the database and skip the cache.
	mock.ExpectQuery(`SELECT (.+) FROM "exams"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(1, "current"))

	exam, err = repo.GetByID(ctx, db, 1)
	if err != nil {
		t.Fatalf("transactional GetByID failed: %v", err)
	}
	if exam.Title != "current" {
		t.Errorf("transactional read Title = %q, want %q", exam.Title, "current")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected database read did not happen: %v", err)
	}
}
