package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/polytech-superapp/campus-sso/internal/model"
	"github.com/polytech-superapp/campus-sso/internal/utils"
)

const accountColumns = "id, username, password_hash, full_name, app, role, entity_id, roster_id, is_active, created_at"

// AccountRepo reads and writes the 'accounts' table.
type AccountRepo struct{ DB *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

// CreateParams carries the fields of a direct account creation.
type CreateParams struct {
	Username string
	Password string
	FullName string
	App      string
	Role     string
	EntityID *string
	RosterID *int64
}

// UpsertParams carries a provisioning upsert. EntityID is mandatory;
// RosterID is the optional external timetable id used as a secondary
// match key.
type UpsertParams struct {
	Username string
	Password string
	FullName string
	EntityID string
	RosterID *int64
}

// ListFilter narrows List. Zero values mean "no constraint".
type ListFilter struct {
	App       string
	Role      string
	Search    string // matches username or full name, substring
	EntityIDs []string
	Limit     int
	Offset    int
}

// Create inserts a new account and returns it. A username collision
// maps to ErrDuplicateUsername.
func (r *AccountRepo) Create(ctx context.Context, p CreateParams, bcryptCost int) (model.Account, error) {
	hash, err := utils.HashPassword(p.Password, bcryptCost)
	if err != nil {
		return model.Account{}, err
	}
	acc := model.Account{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(p.Username),
		PasswordHash: hash,
		FullName:     p.FullName,
		App:          p.App,
		Role:         p.Role,
		EntityID:     p.EntityID,
		RosterID:     p.RosterID,
		IsActive:     true,
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO accounts (id, username, password_hash, full_name, app, role, entity_id, roster_id, is_active, created_at) VALUES (?,?,?,?,?,?,?,?,1,NOW())",
		acc.ID, acc.Username, acc.PasswordHash, acc.FullName, acc.App, acc.Role, nullStr(acc.EntityID), nullInt(acc.RosterID))
	if err != nil {
		if isDuplicateKey(err) {
			return model.Account{}, duplicateKeySentinel(err)
		}
		return model.Account{}, err
	}
	return r.GetByID(ctx, acc.ID)
}

// GetByID fetches one account by primary key.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (model.Account, error) {
	return r.one(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id=? LIMIT 1", id)
}

// GetActiveByUsername fetches an active account for login.
func (r *AccountRepo) GetActiveByUsername(ctx context.Context, username string) (model.Account, error) {
	return r.one(ctx, "SELECT "+accountColumns+" FROM accounts WHERE username=? AND is_active=1 LIMIT 1",
		strings.TrimSpace(username))
}

// UsernameAvailable reports whether no account owns the username.
func (r *AccountRepo) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM accounts WHERE username=? LIMIT 1", strings.TrimSpace(username)).Scan(&one)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// UpdateFields patches full name, password and active flag. Nil means
// "leave unchanged". A new password is re-hashed here.
func (r *AccountRepo) UpdateFields(ctx context.Context, id string, fullName *string, password *string, isActive *bool, bcryptCost int) (model.Account, error) {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if fullName != nil {
		sets = append(sets, "full_name=?")
		args = append(args, *fullName)
	}
	if password != nil {
		hash, err := utils.HashPassword(*password, bcryptCost)
		if err != nil {
			return model.Account{}, err
		}
		sets = append(sets, "password_hash=?")
		args = append(args, hash)
	}
	if isActive != nil {
		sets = append(sets, "is_active=?")
		args = append(args, *isActive)
	}
	if len(sets) > 0 {
		args = append(args, id)
		if _, err := r.DB.ExecContext(ctx,
			"UPDATE accounts SET "+strings.Join(sets, ", ")+" WHERE id=?", args...); err != nil {
			return model.Account{}, err
		}
	}
	return r.GetByID(ctx, id)
}

// Delete removes an account by id. Telegram links and refresh sessions
// cascade via foreign keys.
func (r *AccountRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM accounts WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByEntity removes the account bound to (app, entity_id). A
// missing row is reported as ErrNotFound, which the gateway treats as
// success: delete-by-entity is cleanup, not an assertion.
func (r *AccountRepo) DeleteByEntity(ctx context.Context, app, entityID string) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM accounts WHERE app=? AND entity_id=?", app, entityID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByRosterID fetches the account holding the external roster id
// within an app.
func (r *AccountRepo) FindByRosterID(ctx context.Context, app string, rosterID int64) (model.Account, error) {
	return r.one(ctx, "SELECT "+accountColumns+" FROM accounts WHERE app=? AND roster_id=? LIMIT 1", app, rosterID)
}

// FindByTelegramID fetches the account linked to a telegram id,
// optionally restricted to one app.
func (r *AccountRepo) FindByTelegramID(ctx context.Context, telegramID int64, app string) (model.Account, error) {
	q := "SELECT a.id, a.username, a.password_hash, a.full_name, a.app, a.role, a.entity_id, a.roster_id, a.is_active, a.created_at " +
		"FROM accounts a JOIN telegram_links l ON l.account_id = a.id WHERE l.telegram_id=?"
	args := []any{telegramID}
	if app != "" {
		q += " AND a.app=?"
		args = append(args, app)
	}
	return r.one(ctx, q+" LIMIT 1", args...)
}

// List returns accounts matching the filter, ordered by app, role and
// creation time.
func (r *AccountRepo) List(ctx context.Context, f ListFilter) ([]model.Account, error) {
	q := "SELECT " + accountColumns + " FROM accounts WHERE 1=1"
	args := []any{}
	if f.App != "" {
		q += " AND app=?"
		args = append(args, f.App)
	}
	if f.Role != "" {
		q += " AND role=?"
		args = append(args, f.Role)
	}
	if f.Search != "" {
		q += " AND (username LIKE ? OR full_name LIKE ?)"
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}
	if len(f.EntityIDs) > 0 {
		q += " AND entity_id IN (?" + strings.Repeat(",?", len(f.EntityIDs)-1) + ")"
		for _, id := range f.EntityIDs {
			args = append(args, id)
		}
	}
	q += " ORDER BY app, role, created_at"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

// Upsert creates or updates the account identified by (app, role,
// entity_id), falling back to (app, role, roster_id) when the entity
// lookup misses. The two keys resolving to different rows is an
// ambiguity the caller must fix; a username held by a third account is
// a duplicate. The supplied password is always re-hashed and the
// account reactivated, since provisioning calls carry a fresh
// credential.
func (r *AccountRepo) Upsert(ctx context.Context, app, role string, p UpsertParams, bcryptCost int) (model.Account, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Account{}, err
	}
	defer tx.Rollback()

	byEntity, err := oneTx(ctx, tx,
		"SELECT "+accountColumns+" FROM accounts WHERE app=? AND role=? AND entity_id=? LIMIT 1",
		app, role, p.EntityID)
	if err != nil && err != ErrNotFound {
		return model.Account{}, err
	}
	hasEntity := err == nil

	var byRoster model.Account
	hasRoster := false
	if p.RosterID != nil {
		byRoster, err = oneTx(ctx, tx,
			"SELECT "+accountColumns+" FROM accounts WHERE app=? AND role=? AND roster_id=? LIMIT 1",
			app, role, *p.RosterID)
		if err != nil && err != ErrNotFound {
			return model.Account{}, err
		}
		hasRoster = err == nil
	}

	if hasEntity && hasRoster && byEntity.ID != byRoster.ID {
		return model.Account{}, ErrAmbiguousIdentity
	}

	var target *model.Account
	if hasEntity {
		target = &byEntity
	} else if hasRoster {
		target = &byRoster
	}

	username := strings.TrimSpace(p.Username)
	sameName, err := oneTx(ctx, tx,
		"SELECT "+accountColumns+" FROM accounts WHERE username=? LIMIT 1", username)
	if err != nil && err != ErrNotFound {
		return model.Account{}, err
	}
	if err == nil && (target == nil || sameName.ID != target.ID) {
		return model.Account{}, ErrDuplicateUsername
	}

	hash, err := utils.HashPassword(p.Password, bcryptCost)
	if err != nil {
		return model.Account{}, err
	}

	var id string
	if target == nil {
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx,
			"INSERT INTO accounts (id, username, password_hash, full_name, app, role, entity_id, roster_id, is_active, created_at) VALUES (?,?,?,?,?,?,?,?,1,NOW())",
			id, username, hash, p.FullName, app, role, p.EntityID, nullInt(p.RosterID))
	} else {
		id = target.ID
		_, err = tx.ExecContext(ctx,
			"UPDATE accounts SET username=?, password_hash=?, full_name=?, entity_id=?, roster_id=?, is_active=1 WHERE id=?",
			username, hash, p.FullName, p.EntityID, nullInt(p.RosterID), id)
	}
	if err != nil {
		if isDuplicateKey(err) {
			return model.Account{}, duplicateKeySentinel(err)
		}
		return model.Account{}, err
	}

	acc, err := oneTx(ctx, tx, "SELECT "+accountColumns+" FROM accounts WHERE id=? LIMIT 1", id)
	if err != nil {
		return model.Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Account{}, err
	}
	return acc, nil
}

// ---- scanning helpers ----

type rowScanner interface{ Scan(dest ...any) error }

func scanAccount(row rowScanner) (model.Account, error) {
	var (
		acc      model.Account
		entityID sql.NullString
		rosterID sql.NullInt64
	)
	err := row.Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &acc.FullName,
		&acc.App, &acc.Role, &entityID, &rosterID, &acc.IsActive, &acc.CreatedAt)
	if err != nil {
		return model.Account{}, err
	}
	if entityID.Valid {
		acc.EntityID = &entityID.String
	}
	if rosterID.Valid {
		acc.RosterID = &rosterID.Int64
	}
	return acc, nil
}

func (r *AccountRepo) one(ctx context.Context, query string, args ...any) (model.Account, error) {
	acc, err := scanAccount(r.DB.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return model.Account{}, ErrNotFound
	}
	return acc, err
}

func oneTx(ctx context.Context, tx *sql.Tx, query string, args ...any) (model.Account, error) {
	acc, err := scanAccount(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return model.Account{}, ErrNotFound
	}
	return acc, err
}

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

// isDuplicateKey spots MySQL error 1062 (duplicate entry) the way the
// driver surfaces it.
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "1062")
}

// duplicateKeySentinel maps a 1062 error to the invariant it violated.
// The unique roster index is the backstop for concurrent upserts whose
// lookups both missed; the error names the index that raced.
func duplicateKeySentinel(err error) error {
	if strings.Contains(err.Error(), "uq_accounts_roster") {
		return ErrAmbiguousIdentity
	}
	return ErrDuplicateUsername
}
