package services

import (
	"testing"

	"github.com/google/uuid"
)

func TestOngoingRegistryCompareAndDelete(t *testing.T) {
	r := NewOngoingRegistry()
	user := uuid.New()

	if prev := r.Begin(user, "msg-1"); prev != "" {
		t.Fatalf("first begin: want empty previous got=%q", prev)
	}
	if prev := r.Begin(user, "msg-2"); prev != "msg-1" {
		t.Fatalf("overwrite: want=msg-1 got=%q", prev)
	}
	if r.End(user, "msg-1") {
		t.Fatalf("stale turn must not clear the newer entry")
	}
	if id, ok := r.Current(user); !ok || id != "msg-2" {
		t.Fatalf("current: want=msg-2 got=%q ok=%v", id, ok)
	}
	if !r.End(user, "msg-2") {
		t.Fatalf("owning turn should clear its entry")
	}
	if r.Len() != 0 {
		t.Fatalf("len: want=0 got=%d", r.Len())
	}
}
