package models

import "testing"

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusAccepted, StatusInProgress, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusAccepted, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCancelled, StatusPending, false},
		{StatusPending, StatusPending, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.allowed {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.allowed)
		}
	}
}

func TestValidServiceType(t *testing.T) {
	for _, s := range []string{"towing", "battery_jump", "lockout", "mechanic"} {
		if !ValidServiceType(s) {
			t.Errorf("ValidServiceType(%q) = false", s)
		}
	}
	for _, s := range []string{"", "teleport", "TOWING"} {
		if ValidServiceType(s) {
			t.Errorf("ValidServiceType(%q) = true", s)
		}
	}
}

func TestValidStatus(t *testing.T) {
	if !ValidStatus("in_progress") {
		t.Error("in_progress should be valid")
	}
	if ValidStatus("done") {
		t.Error("done should be invalid")
	}
}
