package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var linkCols = []string{"account_id", "telegram_id", "telegram_username", "chat_id", "linked_at"}

func TestLinkCreatesNew(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT account_id FROM telegram_links WHERE telegram_id=").
		WithArgs(int64(777)).
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}))
	mock.ExpectExec("INSERT INTO telegram_links").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT (.+) FROM telegram_links WHERE account_id=").
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows(linkCols).AddRow("acc-1", int64(777), "tg_user", nil, time.Now()))
	mock.ExpectCommit()

	repo := NewLinkRepo(db)
	username := "tg_user"
	link, err := repo.Link(context.Background(), "acc-1", 777, &username, nil)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if link.TelegramID != 777 || link.AccountID != "acc-1" {
		t.Fatalf("unexpected link: %+v", link)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// A telegram identity may own exactly one account. Linking it to a
// second account is refused without touching anything.
func TestLinkTakenByOtherAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT account_id FROM telegram_links WHERE telegram_id=").
		WithArgs(int64(777)).
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("acc-other"))
	mock.ExpectRollback()

	repo := NewLinkRepo(db)
	if _, err := repo.Link(context.Background(), "acc-1", 777, nil, nil); err != ErrLinkTaken {
		t.Fatalf("expected ErrLinkTaken, got %v", err)
	}
}

func TestUnlinkMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM telegram_links WHERE account_id=").
		WithArgs("acc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewLinkRepo(db)
	if err := repo.Unlink(context.Background(), "acc-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
