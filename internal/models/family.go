package models

import "time"

// Family groups users sharing a calendar, stored at families/{id}.
// The PIN is kept in plain text and compared by equality. PIN and OwnerID
// are left empty when a family is shown to someone outside it.
type Family struct {
	ID      string `json:"id" firestore:"id" bson:"id"`
	Name    string `json:"name" firestore:"name" bson:"name"`
	PIN     string `json:"pin,omitempty" firestore:"pin" bson:"pin"`
	OwnerID string `json:"ownerId,omitempty" firestore:"ownerId" bson:"ownerId"`
}

// CachedFamily is the local cache copy of a Family
type CachedFamily struct {
	LocalID   int64
	Family    Family
	UpdatedAt time.Time
}
