package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestCheckWithNoDependencies(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	status := checker.Check(context.Background())
	if status.Status != StatusHealthy {
		t.Errorf("expected %s, got %s", StatusHealthy, status.Status)
	}
	if len(status.Dependencies) != 0 {
		t.Errorf("expected no dependency entries, got %d", len(status.Dependencies))
	}
}

func TestCheckDatabaseHealthy(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	checker := NewHealthChecker(db, nil)
	status := checker.Check(context.Background())

	if status.Status != StatusHealthy {
		t.Errorf("expected %s, got %s", StatusHealthy, status.Status)
	}
	dep, ok := status.Dependencies["database"]
	if !ok {
		t.Fatal("expected database dependency entry")
	}
	if dep.Status != StatusHealthy {
		t.Errorf("expected database %s, got %s", StatusHealthy, dep.Status)
	}
}

func TestCheckDatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing().WillReturnError(context.DeadlineExceeded)

	checker := NewHealthChecker(db, nil)
	status := checker.Check(context.Background())

	if status.Status != StatusUnhealthy {
		t.Errorf("expected %s, got %s", StatusUnhealthy, status.Status)
	}
}

func TestRedisDownIsDegraded(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	checker := NewHealthChecker(nil, client)

	status := checker.Check(context.Background())
	if status.Status != StatusHealthy {
		t.Errorf("expected %s while redis is up, got %s", StatusHealthy, status.Status)
	}

	// Redis is optional, so losing it degrades rather than fails readiness.
	srv.Close()
	status = checker.Check(context.Background())
	if status.Status != StatusDegraded {
		t.Errorf("expected %s after redis went away, got %s", StatusDegraded, status.Status)
	}
}

func TestHealthRoutes(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, NewHealthChecker(nil, client))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("liveness: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readiness: expected 200, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode readiness body: %v", err)
	}
	if status.Status != StatusHealthy {
		t.Errorf("expected %s, got %s", StatusHealthy, status.Status)
	}
	if _, ok := status.Dependencies["redis"]; !ok {
		t.Error("expected redis dependency entry")
	}
}
