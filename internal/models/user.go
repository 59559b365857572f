package models

import "time"

// User is a family member's profile, stored at users/{id}
type User struct {
	ID        string `json:"id" firestore:"id" bson:"id"`
	FamilyID  string `json:"familyId" firestore:"familyId" bson:"familyId"`
	FirstName string `json:"firstName" firestore:"firstName" bson:"firstName"`
	LastName  string `json:"lastName" firestore:"lastName" bson:"lastName"`
	Email     string `json:"email" firestore:"email" bson:"email"`
	Gender    string `json:"gender" firestore:"gender" bson:"gender"`
	Alias     string `json:"alias" firestore:"alias" bson:"alias"`
	Role      string `json:"role" firestore:"role" bson:"role"`
	Birthday  string `json:"birthday" firestore:"birthday" bson:"birthday"`

	// FamilyPIN is the PIN entered while joining. It is checked by the
	// membership rule on write and never stored.
	FamilyPIN string `json:"-" firestore:"-" bson:"-"`
}

// DisplayName returns the alias when set, otherwise the first name
func (u *User) DisplayName() string {
	if u.Alias != "" {
		return u.Alias
	}
	return u.FirstName
}

// CachedUser is the local cache copy of a User
type CachedUser struct {
	LocalID   int64
	User      User
	UpdatedAt time.Time
}

// Identity is an authenticated account as seen by the auth gateway
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Account is the local credential record behind an Identity
type Account struct {
	LocalID      int64
	IdentityID   string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session represents an authenticated session
type Session struct {
	Token     string    `json:"token"`
	Identity  Identity  `json:"identity"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
