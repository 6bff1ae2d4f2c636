package repository

import (
	"context"
	"database/sql"

	"github.com/polytech-superapp/campus-sso/internal/model"
)

// LinkRepo manages the 1:1 telegram_links table. The account id is the
// primary key and the telegram id is globally unique, so the schema
// itself enforces one link per account and one account per telegram
// identity.
type LinkRepo struct{ DB *sql.DB }

func NewLinkRepo(db *sql.DB) *LinkRepo { return &LinkRepo{DB: db} }

// Link attaches a telegram identity to an account, overwriting any
// previous link owned by the same account. A telegram id already
// linked to a different account fails with ErrLinkTaken and mutates
// nothing.
func (r *LinkRepo) Link(ctx context.Context, accountID string, telegramID int64, username *string, chatID *int64) (model.TelegramLink, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.TelegramLink{}, err
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRowContext(ctx,
		"SELECT account_id FROM telegram_links WHERE telegram_id=? LIMIT 1", telegramID).Scan(&owner)
	if err != nil && err != sql.ErrNoRows {
		return model.TelegramLink{}, err
	}
	if err == nil && owner != accountID {
		return model.TelegramLink{}, ErrLinkTaken
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO telegram_links (account_id, telegram_id, telegram_username, chat_id, linked_at) VALUES (?,?,?,?,NOW()) "+
			"ON DUPLICATE KEY UPDATE telegram_id=VALUES(telegram_id), telegram_username=VALUES(telegram_username), chat_id=VALUES(chat_id), linked_at=NOW()",
		accountID, telegramID, nullStr(username), nullInt(chatID))
	if err != nil {
		// The unique index on telegram_id catches the race this
		// transaction's SELECT could not see.
		if isDuplicateKey(err) {
			return model.TelegramLink{}, ErrLinkTaken
		}
		return model.TelegramLink{}, err
	}

	link, err := linkTx(ctx, tx, accountID)
	if err != nil {
		return model.TelegramLink{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.TelegramLink{}, err
	}
	return link, nil
}

// Unlink removes an account's telegram link.
func (r *LinkRepo) Unlink(ctx context.Context, accountID string) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM telegram_links WHERE account_id=?", accountID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByAccount fetches the link owned by an account.
func (r *LinkRepo) GetByAccount(ctx context.Context, accountID string) (model.TelegramLink, error) {
	link, err := scanLink(r.DB.QueryRowContext(ctx,
		"SELECT account_id, telegram_id, telegram_username, chat_id, linked_at FROM telegram_links WHERE account_id=? LIMIT 1",
		accountID))
	if err == sql.ErrNoRows {
		return model.TelegramLink{}, ErrNotFound
	}
	return link, err
}

func linkTx(ctx context.Context, tx *sql.Tx, accountID string) (model.TelegramLink, error) {
	link, err := scanLink(tx.QueryRowContext(ctx,
		"SELECT account_id, telegram_id, telegram_username, chat_id, linked_at FROM telegram_links WHERE account_id=? LIMIT 1",
		accountID))
	if err == sql.ErrNoRows {
		return model.TelegramLink{}, ErrNotFound
	}
	return link, err
}

func scanLink(row rowScanner) (model.TelegramLink, error) {
	var (
		link     model.TelegramLink
		username sql.NullString
		chatID   sql.NullInt64
	)
	err := row.Scan(&link.AccountID, &link.TelegramID, &username, &chatID, &link.LinkedAt)
	if err != nil {
		return model.TelegramLink{}, err
	}
	if username.Valid {
		link.TelegramUsername = &username.String
	}
	if chatID.Valid {
		link.ChatID = &chatID.Int64
	}
	return link, nil
}
