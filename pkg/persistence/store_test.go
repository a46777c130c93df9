package persistence

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	pipelineerrs "github.com/dioceseharvest/pipeline/pkg/pipeline/errs"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	store := New(db, nil)
	return store, mock
}

func TestUpsertDiocese(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(`INSERT INTO diocese`).
		WithArgs(int64(42), "Diocese of Example", "123 Main St", "https://diocese.example.org").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpsertDiocese(context.Background(), Diocese{
		DioceseID: 42, Name: "Diocese of Example", Address: "123 Main St", WebsiteURL: "https://diocese.example.org",
	})
	if err != nil {
		t.Fatalf("UpsertDiocese() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpsertParishDirectory(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(`INSERT INTO parish_directory`).
		WithArgs(int64(1), "https://diocese.example.org/parishes", true, "heuristic").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpsertParishDirectory(context.Background(), 1, "https://diocese.example.org/parishes", true, DetectedHeuristic)
	if err != nil {
		t.Fatalf("UpsertParishDirectory() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpsertParish_ReturnsParishID(t *testing.T) {
	store, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"parish_id"}).AddRow(int64(7))
	mock.ExpectQuery(`INSERT INTO parish`).
		WithArgs(int64(1), "St. Mary", "st mary", "1 Main St", "1 main st", "", "", "", "", "", "heuristic").
		WillReturnRows(rows)

	id, err := store.UpsertParish(context.Background(), Parish{
		DioceseID: 1, Name: "St. Mary", NormalizedName: "st mary",
		Street: "1 Main St", NormalizedStreet: "1 main st", ExtractionMethod: "heuristic",
	})
	if err != nil {
		t.Fatalf("UpsertParish() error = %v", err)
	}
	if id != 7 {
		t.Errorf("UpsertParish() = %d, want 7", id)
	}
}

func TestAppendParishData(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(`INSERT INTO parish_data`).
		WithArgs(int64(7), "MassSchedule", "Sunday 9am", "https://parish.example.org/mass-times", "keyword_based", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.AppendParishData(context.Background(), ParishData{
		ParishID: 7, FactType: "MassSchedule", FactValue: "Sunday 9am",
		FactSourceURL: "https://parish.example.org/mass-times", ExtractionMethod: "keyword_based",
	})
	if err != nil {
		t.Fatalf("AppendParishData() error = %v", err)
	}
}

func TestRegisterWorker(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(`INSERT INTO pipeline_worker`).
		WithArgs("worker-1", "pod-a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.RegisterWorker(context.Background(), "worker-1", "pod-a"); err != nil {
		t.Fatalf("RegisterWorker() error = %v", err)
	}
}

func TestHeartbeat_UpdatesExistingWorker(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE pipeline_worker SET last_heartbeat`).
		WithArgs("worker-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Heartbeat(context.Background(), "worker-1"); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
}

func TestHeartbeat_UnknownWorkerReturnsSentinel(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE pipeline_worker SET last_heartbeat`).
		WithArgs("ghost-worker").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Heartbeat(context.Background(), "ghost-worker")
	if !errors.Is(err, pipelineerrs.ErrUnknownWorker) {
		t.Errorf("Heartbeat() error = %v, want ErrUnknownWorker", err)
	}
}

func TestIsSuppressed_MatchFound(t *testing.T) {
	store, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"?column?"}).AddRow(1)
	mock.ExpectQuery(`SELECT 1 FROM suppression_url`).
		WithArgs(anyStringSlice{}).
		WillReturnRows(rows)

	suppressed, err := store.IsSuppressed(context.Background(), "https://blocked.example.org/page")
	if err != nil {
		t.Fatalf("IsSuppressed() error = %v", err)
	}
	if !suppressed {
		t.Error("IsSuppressed() = false, want true")
	}
}

func TestIsSuppressed_NoMatch(t *testing.T) {
	store, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"?column?"})
	mock.ExpectQuery(`SELECT 1 FROM suppression_url`).
		WithArgs(anyStringSlice{}).
		WillReturnRows(rows)

	suppressed, err := store.IsSuppressed(context.Background(), "https://clean.example.org/page")
	if err != nil {
		t.Fatalf("IsSuppressed() error = %v", err)
	}
	if suppressed {
		t.Error("IsSuppressed() = true, want false")
	}
}

// anyStringSlice satisfies sqlmock.Argument to match pq.Array-encoded
// parameters without depending on their exact driver.Value encoding.
type anyStringSlice struct{}

func (anyStringSlice) Match(v driver.Value) bool { return true }
