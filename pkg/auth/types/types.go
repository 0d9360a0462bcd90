// Package types defines common types used across the auth package.
package types

import (
	"time"
)

// AccessToken is the short-lived bearer credential issued by the Auth API.
type AccessToken struct {
	// Type is the authorization scheme (e.g., "Bearer").
	Type string `json:"type" yaml:"type"`
	// Token is the signed JWT.
	Token string `json:"token" yaml:"token"`
	// Expiry is the expiry reported by the API in epoch milliseconds.
	// The JWT exp claim is authoritative; this field is informational.
	Expiry int64 `json:"expiry" yaml:"expiry"`
}

// Scheme returns the authorization scheme, defaulting to Bearer.
func (a *AccessToken) Scheme() string {
	if a == nil || a.Type == "" {
		return "Bearer"
	}
	return a.Type
}

// Authorization returns the Authorization header value for the token.
func (a *AccessToken) Authorization() string {
	if a == nil || a.Token == "" {
		return ""
	}
	return a.Scheme() + " " + a.Token
}

// ExpiryTime returns Expiry as a time.Time. Zero if unset.
func (a *AccessToken) ExpiryTime() time.Time {
	if a == nil || a.Expiry == 0 {
		return time.Time{}
	}
	return time.UnixMilli(a.Expiry)
}

// User is a club member as returned alongside every access grant.
type User struct {
	ID                    string     `json:"id" yaml:"id"`
	FirstName             string     `json:"first_name" yaml:"first_name"`
	LastName              string     `json:"last_name" yaml:"last_name"`
	Email                 string     `json:"email" yaml:"email"`
	Address               *string    `json:"address" yaml:"address,omitempty"`
	Phone                 *string    `json:"phone" yaml:"phone,omitempty"`
	PhotoURL              *string    `json:"photo_url" yaml:"photo_url,omitempty"`
	Designation           *string    `json:"designation" yaml:"designation,omitempty"`
	GoogleID              *string    `json:"google_id" yaml:"google_id,omitempty"`
	ClubNumber            *string    `json:"club_number" yaml:"club_number,omitempty"`
	YClubNumber           *string    `json:"yclub_number" yaml:"yclub_number,omitempty"`
	ChapterID             *string    `json:"chapter_id" yaml:"chapter_id,omitempty"`
	BloodType             *string    `json:"blood_type,omitempty" yaml:"blood_type,omitempty"`
	Allergy               *string    `json:"allergy,omitempty" yaml:"allergy,omitempty"`
	EmergencyContactName  *string    `json:"emergency_contact_name,omitempty" yaml:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string    `json:"emergency_contact_phone,omitempty" yaml:"emergency_contact_phone,omitempty"`
	CreatedAt             *time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt             *time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// FullName returns "First Last", trimmed.
func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// Session is the persisted {access, user} pair.
type Session struct {
	Access *AccessToken `json:"access" yaml:"access"`
	User   *User        `json:"user" yaml:"user"`
}

// Clone returns a deep copy of the session. Pointer fields of User are shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := &Session{}
	if s.Access != nil {
		a := *s.Access
		c.Access = &a
	}
	if s.User != nil {
		u := *s.User
		c.User = &u
	}
	return c
}

// StorageConfig represents session storage configuration.
type StorageConfig struct {
	// Type is the storage backend type.
	Type StorageType `yaml:"type" json:"type" mapstructure:"type"`
	// Path is the file path for file-based storage.
	Path string `yaml:"path,omitempty" json:"path,omitempty" mapstructure:"path"`
	// KeyringService is the service name for keyring storage.
	KeyringService string `yaml:"keyring_service,omitempty" json:"keyring_service,omitempty" mapstructure:"keyring_service"`
	// KeyringUser is the user name for keyring storage.
	KeyringUser string `yaml:"keyring_user,omitempty" json:"keyring_user,omitempty" mapstructure:"keyring_user"`
}

// StorageType represents the type of session storage.
type StorageType string

const (
	// StorageTypeFile uses file-based storage.
	StorageTypeFile StorageType = "file"
	// StorageTypeKeyring uses OS keyring storage.
	StorageTypeKeyring StorageType = "keyring"
	// StorageTypeMemory uses in-memory storage.
	StorageTypeMemory StorageType = "memory"
)
