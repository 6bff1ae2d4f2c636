package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/polytech-superapp/campus-sso/internal/model"
)

const kioskColumns = "id, reg_pin, display_pin, building_id, building_name, room_id, room_name, assigned_at, created_at"

// KioskRepo manages classroom kiosk devices.
type KioskRepo struct{ DB *sql.DB }

func NewKioskRepo(db *sql.DB) *KioskRepo { return &KioskRepo{DB: db} }

// Init creates an unregistered kiosk with two distinct unique 6-digit
// PINs: one for admin registration, one for display/teacher use.
func (r *KioskRepo) Init(ctx context.Context) (model.Kiosk, error) {
	regPIN, err := r.uniquePIN(ctx, "")
	if err != nil {
		return model.Kiosk{}, err
	}
	displayPIN, err := r.uniquePIN(ctx, regPIN)
	if err != nil {
		return model.Kiosk{}, err
	}
	id := uuid.NewString()
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO kiosks (id, reg_pin, display_pin, created_at) VALUES (?,?,?,NOW())",
		id, regPIN, displayPIN)
	if err != nil {
		return model.Kiosk{}, err
	}
	return r.Get(ctx, id)
}

// Get fetches a kiosk by device id.
func (r *KioskRepo) Get(ctx context.Context, id string) (model.Kiosk, error) {
	return r.oneKiosk(ctx, "SELECT "+kioskColumns+" FROM kiosks WHERE id=? LIMIT 1", id)
}

// FindByRegPIN resolves the PIN an admin read off an unregistered
// kiosk screen.
func (r *KioskRepo) FindByRegPIN(ctx context.Context, pin string) (model.Kiosk, error) {
	return r.oneKiosk(ctx, "SELECT "+kioskColumns+" FROM kiosks WHERE reg_pin=? LIMIT 1", pin)
}

// FindByDisplayPIN resolves the PIN a teacher read off a registered
// waiting kiosk screen.
func (r *KioskRepo) FindByDisplayPIN(ctx context.Context, pin string) (model.Kiosk, error) {
	return r.oneKiosk(ctx, "SELECT "+kioskColumns+" FROM kiosks WHERE display_pin=? LIMIT 1", pin)
}

// List returns every kiosk, oldest first.
func (r *KioskRepo) List(ctx context.Context) ([]model.Kiosk, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+kioskColumns+" FROM kiosks ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Kiosk
	for rows.Next() {
		k, err := scanKiosk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// ListIDs returns all kiosk ids, for the status stream.
func (r *KioskRepo) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id FROM kiosks ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Register binds a kiosk to a building and room.
func (r *KioskRepo) Register(ctx context.Context, id string, buildingID int64, buildingName string, roomID int64, roomName string) (model.Kiosk, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE kiosks SET building_id=?, building_name=?, room_id=?, room_name=?, assigned_at=NOW() WHERE id=?",
		buildingID, buildingName, roomID, roomName, id)
	if err != nil {
		return model.Kiosk{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Could also be an unchanged re-registration; confirm by read.
		if _, err := r.Get(ctx, id); err != nil {
			return model.Kiosk{}, err
		}
	}
	return r.Get(ctx, id)
}

// Delete removes a kiosk; its sessions and marks cascade.
func (r *KioskRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM kiosks WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// uniquePIN draws random 6-digit PINs until one is unused by any kiosk
// in either PIN column and differs from avoid. The display PIN gates
// release of the QR secret, so the draw comes from the secure source.
func (r *KioskRepo) uniquePIN(ctx context.Context, avoid string) (string, error) {
	for i := 0; i < 100; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(1000000))
		if err != nil {
			return "", err
		}
		pin := fmt.Sprintf("%06d", n)
		if pin == avoid {
			continue
		}
		var one int
		err = r.DB.QueryRowContext(ctx,
			"SELECT 1 FROM kiosks WHERE reg_pin=? OR display_pin=? LIMIT 1", pin, pin).Scan(&one)
		if err == sql.ErrNoRows {
			return pin, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", errors.New("could not generate unique kiosk pin")
}

func (r *KioskRepo) oneKiosk(ctx context.Context, query string, args ...any) (model.Kiosk, error) {
	k, err := scanKiosk(r.DB.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return model.Kiosk{}, ErrNotFound
	}
	return k, err
}

func scanKiosk(row rowScanner) (model.Kiosk, error) {
	var (
		k            model.Kiosk
		buildingID   sql.NullInt64
		buildingName sql.NullString
		roomID       sql.NullInt64
		roomName     sql.NullString
		assignedAt   sql.NullTime
	)
	err := row.Scan(&k.ID, &k.RegPIN, &k.DisplayPIN, &buildingID, &buildingName, &roomID, &roomName, &assignedAt, &k.CreatedAt)
	if err != nil {
		return model.Kiosk{}, err
	}
	if buildingID.Valid {
		k.BuildingID = &buildingID.Int64
	}
	if buildingName.Valid {
		k.BuildingName = &buildingName.String
	}
	if roomID.Valid {
		k.RoomID = &roomID.Int64
	}
	if roomName.Valid {
		k.RoomName = &roomName.String
	}
	if assignedAt.Valid {
		k.AssignedAt = &assignedAt.Time
	}
	return k, nil
}
