package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestUniquePINFormat(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT 1 FROM kiosks WHERE reg_pin=(.+) OR display_pin=").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	repo := NewKioskRepo(db)
	pin, err := repo.uniquePIN(context.Background(), "")
	if err != nil {
		t.Fatalf("uniquePIN: %v", err)
	}
	if len(pin) != 6 {
		t.Fatalf("expected a 6-digit pin, got %q", pin)
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			t.Fatalf("pin must be numeric, got %q", pin)
		}
	}
}

// A pin already held by some kiosk forces a redraw.
func TestUniquePINRetriesOnCollision(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT 1 FROM kiosks WHERE reg_pin=(.+) OR display_pin=").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery("SELECT 1 FROM kiosks WHERE reg_pin=(.+) OR display_pin=").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	repo := NewKioskRepo(db)
	if _, err := repo.uniquePIN(context.Background(), ""); err != nil {
		t.Fatalf("uniquePIN: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
