package repository_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"famsync/internal/models"
	"famsync/internal/repository"
	"famsync/internal/testutil"
)

func TestFamilyRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := testutil.NewTestDB(t)
	repo := repository.NewFamilyRepository(db)
	ctx := context.Background()

	got, err := repo.GetFamily(ctx, "F1")
	if err != nil {
		t.Fatalf("GetFamily() error = %v", err)
	}
	if got != nil {
		t.Fatalf("GetFamily() = %+v, want nil for an uncached family", got)
	}

	family := &models.Family{ID: "F1", Name: "Smith", PIN: "1234", OwnerID: "U1"}
	if err := repo.UpsertFamily(ctx, family); err != nil {
		t.Fatalf("UpsertFamily() error = %v", err)
	}

	family.Name = "Smith-Jones"
	if err := repo.UpsertFamily(ctx, family); err != nil {
		t.Fatalf("UpsertFamily() overwrite error = %v", err)
	}

	got, err = repo.GetFamily(ctx, "F1")
	if err != nil {
		t.Fatalf("GetFamily() error = %v", err)
	}
	if got == nil || got.Family != *family {
		t.Fatalf("GetFamily() = %+v, want %+v", got, family)
	}
	if got.LocalID == 0 {
		t.Error("GetFamily() LocalID should be assigned")
	}

	all, err := repo.ListFamilies(ctx)
	if err != nil {
		t.Fatalf("ListFamilies() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("ListFamilies() returned %d families, want 1", len(all))
	}

	if err := repo.DeleteFamily(ctx, "F1"); err != nil {
		t.Fatalf("DeleteFamily() error = %v", err)
	}
	if err := repo.DeleteFamily(ctx, "F1"); err != nil {
		t.Errorf("DeleteFamily() of a missing family error = %v", err)
	}
	if got, _ := repo.GetFamily(ctx, "F1"); got != nil {
		t.Errorf("GetFamily() after delete = %+v, want nil", got)
	}

	if err := repo.UpsertFamily(ctx, &models.Family{Name: "No ID"}); err == nil {
		t.Error("UpsertFamily() should reject a family without remote id")
	}
}

func TestUserRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := testutil.NewTestDB(t)
	repo := repository.NewUserRepository(db)
	ctx := context.Background()

	users := []models.User{
		{ID: "U1", FamilyID: "F1", FirstName: "Anna", Email: "anna@example.com", Role: "parent", Birthday: "1985-04-01"},
		{ID: "U2", FamilyID: "F1", FirstName: "Ben", Alias: "Benny", Role: "child"},
		{ID: "U3", FamilyID: "F2", FirstName: "Cleo"},
	}
	for i := range users {
		users[i].FamilyPIN = "1234"
		if err := repo.UpsertUser(ctx, &users[i]); err != nil {
			t.Fatalf("UpsertUser(%s) error = %v", users[i].ID, err)
		}
	}

	got, err := repo.GetUser(ctx, "U1")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	want := users[0]
	want.FamilyPIN = ""
	if got == nil || got.User != want {
		t.Fatalf("GetUser() = %+v, want %+v", got, want)
	}

	members, err := repo.GetFamilyMembers(ctx, "F1")
	if err != nil {
		t.Fatalf("GetFamilyMembers() error = %v", err)
	}
	if len(members) != 2 || members[0].User.ID != "U1" || members[1].User.ID != "U2" {
		t.Errorf("GetFamilyMembers() = %+v, want U1 and U2", members)
	}

	if err := repo.DeleteUser(ctx, "U2"); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	all, err := repo.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListUsers() returned %d users, want 2", len(all))
	}
}

func TestEventRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := testutil.NewTestDB(t)
	repo := repository.NewEventRepository(db)
	ctx := context.Background()

	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	later := &models.Event{
		ID: "E2", FamilyID: "F1", Title: "Swim", Participants: []string{"U2", "Smith, U1"},
	}
	later.SetTimes(start.Add(24*time.Hour), start.Add(25*time.Hour))
	earlier := &models.Event{
		ID: "E1", FamilyID: "F1", Title: "Dentist", AllDay: true, Notes: "bring card",
		Repeat: "NEVER", Notification: "1h", Location: "Main St", CreatedBy: "U1",
		Participants: []string{},
	}
	earlier.SetTimes(start, start.Add(time.Hour))

	if err := repo.UpsertEvent(ctx, later, false); err != nil {
		t.Fatalf("UpsertEvent() error = %v", err)
	}
	if err := repo.UpsertEvent(ctx, earlier, false); err != nil {
		t.Fatalf("UpsertEvent() error = %v", err)
	}

	events, err := repo.GetEventsForFamily(ctx, "F1")
	if err != nil {
		t.Fatalf("GetEventsForFamily() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("GetEventsForFamily() returned %d events, want 2", len(events))
	}
	if events[0].Event.ID != "E1" {
		t.Errorf("events should be ordered by start date, first = %s", events[0].Event.ID)
	}
	if !reflect.DeepEqual(events[0].Event, *earlier) {
		t.Errorf("cached event = %+v, want %+v", events[0].Event, *earlier)
	}
	if !reflect.DeepEqual(events[1].Event.Participants, []string{"U2", "Smith, U1"}) {
		t.Errorf("participants = %q, want [U2 \"Smith, U1\"]", events[1].Event.Participants)
	}

	unsynced, err := repo.GetUnsyncedEvents(ctx)
	if err != nil {
		t.Fatalf("GetUnsyncedEvents() error = %v", err)
	}
	if len(unsynced) != 2 {
		t.Errorf("GetUnsyncedEvents() returned %d events, want 2", len(unsynced))
	}

	if err := repo.MarkAsSynced(ctx, "E1"); err != nil {
		t.Fatalf("MarkAsSynced() error = %v", err)
	}
	unsynced, _ = repo.GetUnsyncedEvents(ctx)
	if len(unsynced) != 1 || unsynced[0].Event.ID != "E2" {
		t.Errorf("GetUnsyncedEvents() after MarkAsSynced = %+v, want only E2", unsynced)
	}

	if err := repo.DeleteEvent(ctx, "E2"); err != nil {
		t.Fatalf("DeleteEvent() error = %v", err)
	}
	if err := repo.DeleteEvent(ctx, "missing"); err != nil {
		t.Errorf("DeleteEvent() of a missing event error = %v", err)
	}
}

func TestReplaceFamilyEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := testutil.NewTestDB(t)
	repo := repository.NewEventRepository(db)
	ctx := context.Background()

	seed := []*models.Event{
		{ID: "E1", FamilyID: "F1", Title: "Old"},
		{ID: "E9", FamilyID: "F2", Title: "Other family"},
	}
	for _, e := range seed {
		if err := repo.UpsertEvent(ctx, e, false); err != nil {
			t.Fatalf("UpsertEvent() error = %v", err)
		}
	}

	snapshot := []models.Event{
		{ID: "E2", FamilyID: "F1", Title: "New A"},
		{ID: "E3", FamilyID: "F1", Title: "New B"},
	}
	if err := repo.ReplaceFamilyEvents(ctx, "F1", snapshot); err != nil {
		t.Fatalf("ReplaceFamilyEvents() error = %v", err)
	}

	events, err := repo.GetEventsForFamily(ctx, "F1")
	if err != nil {
		t.Fatalf("GetEventsForFamily() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("GetEventsForFamily() returned %d events, want 2", len(events))
	}
	for _, e := range events {
		if !e.IsSynced {
			t.Errorf("event %s should be marked synced", e.Event.ID)
		}
		if e.Event.ID == "E1" {
			t.Error("stale event E1 should have been replaced")
		}
	}

	other, _ := repo.GetEventsForFamily(ctx, "F2")
	if len(other) != 1 {
		t.Errorf("other family's events should be untouched, got %d", len(other))
	}

	if err := repo.ReplaceFamilyEvents(ctx, "F1", nil); err != nil {
		t.Fatalf("ReplaceFamilyEvents(nil) error = %v", err)
	}
	events, _ = repo.GetEventsForFamily(ctx, "F1")
	if len(events) != 0 {
		t.Errorf("empty snapshot should clear the family, got %d events", len(events))
	}
}

func TestAccountRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := testutil.NewTestDB(t)
	repo := repository.NewAccountRepository(db)
	ctx := context.Background()

	created, err := repo.CreateAccount(ctx, "uid-1", " Anna@Example.com ", "hash")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if created.Email != "anna@example.com" {
		t.Errorf("CreateAccount() email = %q, want normalized", created.Email)
	}

	byEmail, err := repo.GetByEmail(ctx, "ANNA@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if byEmail == nil || byEmail.IdentityID != "uid-1" {
		t.Fatalf("GetByEmail() = %+v, want uid-1", byEmail)
	}

	missing, err := repo.GetByIdentityID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetByIdentityID(missing) = %+v, %v; want nil, nil", missing, err)
	}

	if _, err := repo.CreateAccount(ctx, "uid-2", "anna@example.com", "hash"); err == nil {
		t.Error("CreateAccount() should fail on a duplicate email")
	}

	byEmail.PasswordHash = "rotated"
	if err := repo.RestoreAccount(ctx, byEmail); err != nil {
		t.Fatalf("RestoreAccount() error = %v", err)
	}
	accounts, err := repo.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}
	if len(accounts) != 1 || accounts[0].PasswordHash != "rotated" {
		t.Errorf("ListAccounts() = %+v, want one rotated account", accounts)
	}
}
