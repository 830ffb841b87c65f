package utils

import (
	"strings"
	"testing"
)

func TestGenMessageID(t *testing.T) {
	a := GenMessageID()
	b := GenMessageID()
	if !strings.HasPrefix(a, "msg-") {
		t.Fatalf("unexpected id %q", a)
	}
	if a == b {
		t.Fatalf("ids must be unique, got %q twice", a)
	}
}

func TestGenContactID(t *testing.T) {
	id := GenContactID()
	if !strings.HasPrefix(id, "user-") {
		t.Fatalf("unexpected id %q", id)
	}
}
