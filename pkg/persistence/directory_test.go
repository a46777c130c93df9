package persistence

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestGetParishDirectory_Found(t *testing.T) {
	store, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"diocese_id", "directory_url", "found", "detected_by"}).
		AddRow(int64(1), "https://diocese.example.org/parishes", true, "heuristic")
	mock.ExpectQuery(`SELECT diocese_id, directory_url, found, detected_by FROM parish_directory`).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	d, err := store.GetParishDirectory(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetParishDirectory() error = %v", err)
	}
	if d == nil || d.DirectoryURL != "https://diocese.example.org/parishes" {
		t.Errorf("GetParishDirectory() = %+v", d)
	}
}

func TestGetParishDirectory_NotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT diocese_id, directory_url, found, detected_by FROM parish_directory`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"diocese_id", "directory_url", "found", "detected_by"}))

	d, err := store.GetParishDirectory(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetParishDirectory() error = %v", err)
	}
	if d != nil {
		t.Errorf("GetParishDirectory() = %+v, want nil", d)
	}
}

func TestListDiocesesMissingDirectory_Query(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT d.diocese_id, d.name, d.address, d.website_url`).
		WillReturnRows(sqlmock.NewRows([]string{"diocese_id", "name", "address", "website_url"}))

	dioceses, err := store.ListDiocesesMissingDirectory(context.Background())
	if err != nil {
		t.Fatalf("ListDiocesesMissingDirectory() error = %v", err)
	}
	if len(dioceses) != 0 {
		t.Errorf("ListDiocesesMissingDirectory() = %v, want empty", dioceses)
	}
}
