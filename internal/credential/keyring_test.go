package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func TestActiveUserRoundTrip(t *testing.T) {
	store := New(keyring.NewArrayKeyring(nil))

	if _, err := store.ActiveUser(); !errors.Is(err, ErrNoActiveUser) {
		t.Fatalf("expected ErrNoActiveUser, got %v", err)
	}
	if err := store.SetActiveUser("u1"); err != nil {
		t.Fatalf("set active user: %v", err)
	}
	got, err := store.ActiveUser()
	if err != nil || got != "u1" {
		t.Fatalf("ActiveUser = %q, %v", got, err)
	}
	if err := store.SignOut(); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if err := store.SignOut(); err != nil {
		t.Fatalf("second sign out: %v", err)
	}
	if _, err := store.ActiveUser(); !errors.Is(err, ErrNoActiveUser) {
		t.Fatalf("expected ErrNoActiveUser after sign out, got %v", err)
	}
}
