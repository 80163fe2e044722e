package models

import "time"

// PasswordCredential is the password record of one user.
//
// Hash is the self-describing digest blob produced by the hasher package: it
// carries the algorithm version, salt, iteration count and derived key.
// Version is bumped by every hash write and is used to make rehash writes
// conditional. Last-login updates do not touch it.
type PasswordCredential struct {
	UserID        int64
	Hash          []byte
	Version       int64
	LastLoginTime *time.Time
	LastModified  time.Time
}

// ProviderBinding associates an external identity with a user for one
// federated provider and sub-scheme. Payload is the provider's JSON document.
type ProviderBinding struct {
	Provider      string
	SchemeSuffix  string
	UserID        int64
	ExternalKey   string
	Payload       []byte
	LastLoginTime *time.Time
	LastModified  time.Time
}
