package presence_test

import (
	"testing"
	"time"

	"sotto/internal/domain"
	"sotto/internal/presence"
)

func peerKey(b byte) domain.PeerKey {
	var pub domain.X25519Public
	pub[0] = b
	return domain.PeerKeyOf(pub)
}

func TestObserveAndSnapshot(t *testing.T) {
	tr := presence.NewTracker()
	a, b := peerKey(1), peerKey(2)

	tr.Observe(a, domain.PresencePayload{Status: domain.PresenceOnline, DisplayName: "alice"})
	tr.Observe(b, domain.PresencePayload{Status: domain.PresenceOnline, DisplayName: "bob"})

	if !tr.Online(a) || !tr.Online(b) {
		t.Fatal("both peers should be online")
	}
	snap := tr.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d rows, want 2", len(snap))
	}

	tr.Observe(a, domain.PresencePayload{Status: domain.PresenceOffline})
	if tr.Online(a) {
		t.Error("peer a should be offline")
	}
	if len(tr.Snapshot()) != 1 {
		t.Error("offline peer still in snapshot")
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	tr := presence.NewTracker()
	var got []presence.Info
	unsub := tr.Subscribe(func(info presence.Info) { got = append(got, info) })

	tr.Observe(peerKey(1), domain.PresencePayload{Status: domain.PresenceOnline})
	if len(got) != 1 {
		t.Fatalf("got %d notifications, want 1", len(got))
	}
	if got[0].Status != domain.PresenceOnline {
		t.Errorf("status = %s, want %s", got[0].Status, domain.PresenceOnline)
	}

	unsub()
	tr.Observe(peerKey(2), domain.PresencePayload{Status: domain.PresenceOnline})
	if len(got) != 1 {
		t.Error("notification after unsubscribe")
	}
}

func TestPrune(t *testing.T) {
	tr := presence.NewTracker()
	tr.Observe(peerKey(1), domain.PresencePayload{Status: domain.PresenceOnline})

	if n := tr.Prune(time.Hour); n != 0 {
		t.Errorf("pruned %d fresh peers, want 0", n)
	}
	time.Sleep(20 * time.Millisecond)
	if n := tr.Prune(10 * time.Millisecond); n != 1 {
		t.Errorf("pruned %d stale peers, want 1", n)
	}
	if tr.Online(peerKey(1)) {
		t.Error("pruned peer still online")
	}
}
