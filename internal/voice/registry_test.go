package voice

import "testing"

func TestRegistryRegisterResolve(t *testing.T) {
	r := NewSpeakerRegistry()
	r.Register(12345, "user-1", "alice")

	sp, ok := r.Resolve(12345)
	if !ok {
		t.Fatal("expected mapping for registered stream")
	}
	if sp.UserID != "user-1" || sp.Username != "alice" {
		t.Fatalf("speaker mismatch: got=%+v", sp)
	}
	if _, ok := r.Resolve(99999); ok {
		t.Fatal("unregistered stream should not resolve")
	}
}

// TestRegistryUpsert covers stream-id reuse after a transport reconnect:
// re-registering an SSRC must overwrite, never error.
func TestRegistryUpsert(t *testing.T) {
	r := NewSpeakerRegistry()
	r.Register(7, "user-1", "alice")
	r.Register(7, "user-2", "bob")

	sp, ok := r.Resolve(7)
	if !ok || sp.UserID != "user-2" {
		t.Fatalf("upsert did not overwrite: got=%+v ok=%v", sp, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("want 1 entry, got %d", r.Len())
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewSpeakerRegistry()
	r.Register(7, "user-1", "alice")
	r.Unregister(7)
	if _, ok := r.Resolve(7); ok {
		t.Fatal("unregistered stream should not resolve")
	}
	r.Unregister(7) // no-op
}

func TestRegistrySSRCsFor(t *testing.T) {
	r := NewSpeakerRegistry()
	r.Register(1, "user-1", "alice")
	r.Register(2, "user-2", "bob")
	r.Register(3, "user-1", "alice")

	ssrcs := r.SSRCsFor("user-1")
	if len(ssrcs) != 2 {
		t.Fatalf("want 2 streams for user-1, got %d", len(ssrcs))
	}
	if got := r.SSRCsFor("nobody"); len(got) != 0 {
		t.Fatalf("want no streams for unknown user, got %d", len(got))
	}
}
