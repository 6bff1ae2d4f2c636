package model

import "time"

// Known mini-app namespaces. Every account belongs to exactly one of them.
const (
	AppSSO      = "sso"
	AppServices = "services"
	AppTraffic  = "traffic"
)

// Account represents an identity record as stored in the `accounts`
// table. Each account is owned by exactly one mini-app (App) and holds
// exactly one role within it. EntityID optionally ties the account to a
// row in the owning app's own entity table (department, executor,
// teacher); RosterID optionally carries the external timetable-system
// teacher id. JSON tags are omitted because these structs are used by
// the repository layer; handlers define their own response types.
//
// Fields:
//  ID           – UUID primary key.
//  Username     – globally unique login name (across all apps).
//  PasswordHash – bcrypt hashed password.
//  FullName     – display name.
//  App          – owning mini-app: 'sso' | 'services' | 'traffic'.
//  Role         – role within App, validated against AllowedRoles.
//  EntityID     – owning app's entity id (nullable; unique per app when set).
//  RosterID     – external roster/timetable teacher id (nullable; unique when set).
//  IsActive     – whether the account may log in.
//  CreatedAt    – creation timestamp.
type Account struct {
	ID           string     // accounts.id
	Username     string     // accounts.username
	PasswordHash string     // accounts.password_hash
	FullName     string     // accounts.full_name
	App          string     // accounts.app
	Role         string     // accounts.role
	EntityID     *string    // accounts.entity_id (nullable)
	RosterID     *int64     // accounts.roster_id (nullable)
	IsActive     bool       // accounts.is_active
	CreatedAt    time.Time  // accounts.created_at
}

// IsSuperuser reports whether the account is the SSO super-admin, which
// may administer every app.
func (a Account) IsSuperuser() bool {
	return a.App == AppSSO && a.Role == "admin"
}

// allowedRoles is the closed per-app role set. The wire and storage
// representation stays a plain string for forward compatibility, but
// every entry point validates against this table.
var allowedRoles = map[string][]string{
	AppSSO:      {"admin"},
	AppServices: {"admin", "staff", "executor"},
	AppTraffic:  {"admin", "teacher"},
}

// RoleAllowed reports whether role is a valid role for app.
func RoleAllowed(app, role string) bool {
	for _, r := range allowedRoles[app] {
		if r == role {
			return true
		}
	}
	return false
}

// KnownApp reports whether app names one of the mini-app namespaces.
func KnownApp(app string) bool {
	_, ok := allowedRoles[app]
	return ok
}
