package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Event is a calendar entry stored at families/{familyId}/events/{id}.
// StartDate and EndDate are epoch milliseconds.
type Event struct {
	ID           string   `json:"id" firestore:"id" bson:"id"`
	Title        string   `json:"title" firestore:"title" bson:"title"`
	StartDate    int64    `json:"startDate" firestore:"startDate" bson:"startDate"`
	EndDate      int64    `json:"endDate" firestore:"endDate" bson:"endDate"`
	AllDay       bool     `json:"allDay" firestore:"allDay" bson:"allDay"`
	Location     string   `json:"location" firestore:"location" bson:"location"`
	Notification string   `json:"notification" firestore:"notification" bson:"notification"`
	Repeat       string   `json:"repeat" firestore:"repeat" bson:"repeat"`
	Notes        string   `json:"notes" firestore:"notes" bson:"notes"`
	CreatedBy    string   `json:"createdBy" firestore:"createdBy" bson:"createdBy"`
	FamilyID     string   `json:"familyId" firestore:"familyId" bson:"familyId"`
	Participants []string `json:"participants" firestore:"participants" bson:"participants"`
}

// Start returns the start instant
func (e *Event) Start() time.Time {
	return time.UnixMilli(e.StartDate)
}

// End returns the end instant
func (e *Event) End() time.Time {
	return time.UnixMilli(e.EndDate)
}

// SetTimes sets StartDate and EndDate from instants
func (e *Event) SetTimes(start, end time.Time) {
	e.StartDate = start.UnixMilli()
	e.EndDate = end.UnixMilli()
}

// HasParticipant reports whether userID takes part in the event
func (e *Event) HasParticipant(userID string) bool {
	for _, p := range e.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// CachedEvent is the local cache copy of an Event
type CachedEvent struct {
	LocalID   int64
	Event     Event
	IsSynced  bool
	UpdatedAt time.Time
}

// JoinParticipants flattens participant ids to a JSON array for a single
// text column
func JoinParticipants(ids []string) string {
	if len(ids) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(ids)
	return string(data)
}

// SplitParticipants is the inverse of JoinParticipants. Rows written before
// the column held JSON are comma separated and still decode.
func SplitParticipants(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}
	}
	if strings.HasPrefix(s, "[") {
		var ids []string
		if err := json.Unmarshal([]byte(s), &ids); err == nil {
			if ids == nil {
				ids = []string{}
			}
			return ids
		}
	}

	parts := strings.Split(s, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
