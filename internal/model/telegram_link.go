package model

import "time"

// TelegramLink attaches a Telegram identity to exactly one account. The
// account id is the primary key, which enforces the 1:1 relationship;
// TelegramID is globally unique so one chat identity can never be linked
// to two accounts.
//
// Fields:
//  AccountID        – owning account id (primary key, FK accounts.id).
//  TelegramID       – Telegram numeric user id (globally unique).
//  TelegramUsername – Telegram handle (nullable).
//  ChatID           – private chat id used by the bot (nullable).
//  LinkedAt         – when the link was created or last overwritten.
type TelegramLink struct {
	AccountID        string    // telegram_links.account_id
	TelegramID       int64     // telegram_links.telegram_id
	TelegramUsername *string   // telegram_links.telegram_username (nullable)
	ChatID           *int64    // telegram_links.chat_id (nullable)
	LinkedAt         time.Time // telegram_links.linked_at
}
