package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/icco/cinemate/lib/catalog"
	"github.com/icco/cinemate/lib/testsupport"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fixedCircuit struct{ name, state string }

func (c fixedCircuit) Name() string  { return c.name }
func (c fixedCircuit) State() string { return c.state }

func check(t *testing.T, h http.HandlerFunc) (int, Health) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body Health
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec.Code, body
}

func TestCheck(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("database is closed") })

	tests := []struct {
		name       string
		db         Pinger
		circuits   []Circuit
		wantCode   int
		wantStatus string
	}{
		{"healthy", ok, []Circuit{fixedCircuit{"ml-service", "closed"}}, http.StatusOK, "ok"},
		{"no provider", ok, nil, http.StatusOK, "ok"},
		{"open circuit still serves", ok, []Circuit{fixedCircuit{"ml-service", "open"}}, http.StatusOK, "degraded"},
		{"database down", down, nil, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := check(t, Check(tt.db, tt.circuits...))
			if code != tt.wantCode {
				t.Fatalf("code = %d, want %d", code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Fatalf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if len(body.Providers) != len(tt.circuits) {
				t.Fatalf("providers = %v", body.Providers)
			}
		})
	}
}

func TestCheckAgainstCatalog(t *testing.T) {
	gormDB := testsupport.OpenDB(t)
	store := catalog.New(gormDB)

	if code, body := check(t, Check(store)); code != http.StatusOK || body.DB.Status != "ok" {
		t.Fatalf("code = %d body = %+v", code, body)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		t.Fatal(err)
	}
	_ = sqlDB.Close()

	if code, body := check(t, Check(store)); code != http.StatusServiceUnavailable || body.DB.Status != "error" {
		t.Fatalf("code = %d body = %+v", code, body)
	}
}
