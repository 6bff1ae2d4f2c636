package model

import "time"

// Kiosk is a classroom display device in the `kiosks` table. A freshly
// initialized kiosk is unregistered and shows its RegPIN on screen; an
// admin enters that PIN to bind the kiosk to a building and room. Once
// registered, the kiosk shows its DisplayPIN, which a teacher enters to
// find it and which the display page presents to fetch the session's
// QR secret.
//
// Fields:
//  ID           – UUID primary key (device id).
//  RegPIN       – 6-digit registration PIN (unique).
//  DisplayPIN   – 6-digit display/teacher PIN (unique, distinct from RegPIN).
//  BuildingID   – bound building id (nullable until registered).
//  BuildingName – bound building name (nullable).
//  RoomID       – bound room id (nullable until registered).
//  RoomName     – bound room name (nullable).
//  AssignedAt   – when an admin registered the kiosk (nullable).
//  CreatedAt    – creation timestamp.
type Kiosk struct {
	ID           string     // kiosks.id
	RegPIN       string     // kiosks.reg_pin
	DisplayPIN   string     // kiosks.display_pin
	BuildingID   *int64     // kiosks.building_id (nullable)
	BuildingName *string    // kiosks.building_name (nullable)
	RoomID       *int64     // kiosks.room_id (nullable)
	RoomName     *string    // kiosks.room_name (nullable)
	AssignedAt   *time.Time // kiosks.assigned_at (nullable)
	CreatedAt    time.Time  // kiosks.created_at
}

// IsRegistered reports whether the kiosk has been bound to a room.
func (k Kiosk) IsRegistered() bool {
	return k.RoomID != nil
}
