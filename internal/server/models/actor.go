// Package models defines server-side data models persisted in the database.
package models

import "time"

// Reserved actor identifiers. Users and groups share the actor id space.
const (
	// AnonymousID is never stored. It is invalid for any mutating operation.
	AnonymousID int64 = 0
	// SystemID is the built-in System user seeded by the first migration.
	SystemID int64 = 1
)

// User is a named actor.
type User struct {
	ID        int64
	UserName  string
	CreatedAt time.Time
}

// Group is an unnamed actor that holds users.
type Group struct {
	ID        int64
	CreatedAt time.Time
}
