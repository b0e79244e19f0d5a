package transport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"sotto/internal/domain"
	"sotto/internal/transport"
)

// fakeSignaler records published envelopes and lets tests inspect them.
type fakeSignaler struct {
	mu   sync.Mutex
	sent []sentEnvelope
}

type sentEnvelope struct {
	Type    domain.EnvelopeType
	To      domain.PeerKey
	Payload []byte
}

func (f *fakeSignaler) Connect(ctx context.Context) error { return nil }

func (f *fakeSignaler) Send(ctx context.Context, typ domain.EnvelopeType, to domain.PeerKey, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, sentEnvelope{Type: typ, To: to, Payload: raw})
	f.mu.Unlock()
	return nil
}

func (f *fakeSignaler) Subscribe(typ domain.EnvelopeType, h domain.EnvelopeHandler) func() {
	return func() {}
}

func (f *fakeSignaler) Close() error { return nil }

func (f *fakeSignaler) byType(typ domain.EnvelopeType) []sentEnvelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEnvelope
	for _, e := range f.sent {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeSignaler) waitForType(t *testing.T, typ domain.EnvelopeType) sentEnvelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.byType(typ); len(got) > 0 {
			return got[0]
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no %s envelope published in time", typ)
	return sentEnvelope{}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// keyWithByte builds a deterministic peer key whose raw bytes start with b,
// so tests control the lexicographic order.
func keyWithByte(b byte) domain.PeerKey {
	var pub domain.X25519Public
	pub[0] = b
	for i := 1; i < len(pub); i++ {
		pub[i] = 0x42
	}
	return domain.PeerKeyOf(pub)
}

func newRouter(t *testing.T, self domain.PeerKey, sig domain.Signaler, opts transport.Options) *transport.Router {
	t.Helper()
	r, err := transport.NewRouter(discard(), self, sig, opts)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestSendWithoutLinkRelays(t *testing.T) {
	self, peer := keyWithByte(0x01), keyWithByte(0x02)
	sig := &fakeSignaler{}
	r := newRouter(t, self, sig, transport.Options{})

	data := []byte("ciphertext bytes")
	if err := r.Send(context.Background(), peer, data); err != nil {
		t.Fatalf("Send: %v", err)
	}

	relayed := sig.byType(domain.EnvelopeRelayedCiphertext)
	if len(relayed) != 1 {
		t.Fatalf("got %d relayed envelopes, want 1", len(relayed))
	}
	if relayed[0].To != peer {
		t.Errorf("relayed to %s, want %s", relayed[0].To, peer)
	}
	var p domain.CiphertextPayload
	if err := json.Unmarshal(relayed[0].Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !bytes.Equal(p.Data, data) {
		t.Errorf("relayed %q, want %q", p.Data, data)
	}
}

func TestInboundRelayedCiphertextSurfaces(t *testing.T) {
	self, peer := keyWithByte(0x01), keyWithByte(0x02)
	r := newRouter(t, self, &fakeSignaler{}, transport.Options{})

	var mu sync.Mutex
	var gotPeer domain.PeerKey
	var gotData []byte
	r.OnCiphertext(func(p domain.PeerKey, d []byte) {
		mu.Lock()
		gotPeer, gotData = p, d
		mu.Unlock()
	})

	payload, _ := json.Marshal(domain.CiphertextPayload{Data: []byte("hello")})
	r.HandleEnvelope(domain.Envelope{
		Type:    domain.EnvelopeRelayedCiphertext,
		From:    peer,
		To:      self,
		Payload: payload,
	})

	mu.Lock()
	defer mu.Unlock()
	if gotPeer != peer {
		t.Errorf("ciphertext attributed to %s, want %s", gotPeer, peer)
	}
	if string(gotData) != "hello" {
		t.Errorf("got %q, want %q", gotData, "hello")
	}
}

func TestMalformedPayloadDropped(t *testing.T) {
	self, peer := keyWithByte(0x01), keyWithByte(0x02)
	r := newRouter(t, self, &fakeSignaler{}, transport.Options{})

	called := false
	r.OnCiphertext(func(domain.PeerKey, []byte) { called = true })

	r.HandleEnvelope(domain.Envelope{
		Type:    domain.EnvelopeRelayedCiphertext,
		From:    peer,
		Payload: json.RawMessage(`"not an object"`),
	})
	if called {
		t.Error("malformed payload reached the ciphertext callback")
	}
}

func TestLinkPhaseDefaultsToIdle(t *testing.T) {
	r := newRouter(t, keyWithByte(0x01), &fakeSignaler{}, transport.Options{})
	if got := r.LinkPhase(keyWithByte(0x02)); got != domain.LinkIdle {
		t.Errorf("phase = %s, want %s", got, domain.LinkIdle)
	}
}

func TestConnectPublishesOfferAndNegotiates(t *testing.T) {
	self, peer := keyWithByte(0x01), keyWithByte(0x02)
	sig := &fakeSignaler{}
	r := newRouter(t, self, sig, transport.Options{})

	if err := r.Connect(context.Background(), peer); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	offer := sig.waitForType(t, domain.EnvelopeTransportOffer)
	if offer.To != peer {
		t.Errorf("offer to %s, want %s", offer.To, peer)
	}
	var p domain.OfferPayload
	if err := json.Unmarshal(offer.Payload, &p); err != nil {
		t.Fatalf("unmarshal offer: %v", err)
	}
	if p.SDP == "" {
		t.Error("offer SDP is empty")
	}
	if got := r.LinkPhase(peer); got != domain.LinkNegotiating {
		t.Errorf("phase = %s, want %s", got, domain.LinkNegotiating)
	}

	// A second Connect while negotiating is a no-op.
	if err := r.Connect(context.Background(), peer); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if got := len(sig.byType(domain.EnvelopeTransportOffer)); got != 1 {
		t.Errorf("got %d offers after duplicate Connect, want 1", got)
	}
}

func TestNegotiationTimeoutClosesLink(t *testing.T) {
	self, peer := keyWithByte(0x01), keyWithByte(0x02)
	sig := &fakeSignaler{}
	r := newRouter(t, self, sig, transport.Options{NegotiationTimeout: 100 * time.Millisecond})

	var mu sync.Mutex
	var phases []domain.LinkPhase
	r.OnStateChange(func(_ domain.PeerKey, phase domain.LinkPhase) {
		mu.Lock()
		phases = append(phases, phase)
		mu.Unlock()
	})

	if err := r.Connect(context.Background(), peer); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.LinkPhase(peer) == domain.LinkClosed {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if got := r.LinkPhase(peer); got != domain.LinkClosed {
		t.Fatalf("phase = %s after timeout, want %s", got, domain.LinkClosed)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []domain.LinkPhase{domain.LinkNegotiating, domain.LinkClosed}
	if len(phases) != len(want) {
		t.Fatalf("state changes = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("state changes = %v, want %v", phases, want)
		}
	}
}

// TestGlareResolvesToSingleNegotiation drives both halves of the tie-break:
// the smaller key ignores the peer's offer and keeps its own; the larger
// key discards its own offer and answers.
func TestGlareResolvesToSingleNegotiation(t *testing.T) {
	small, large := keyWithByte(0x01), keyWithByte(0x02)

	sigSmall := &fakeSignaler{}
	sigLarge := &fakeSignaler{}
	rSmall := newRouter(t, small, sigSmall, transport.Options{})
	rLarge := newRouter(t, large, sigLarge, transport.Options{})

	// Both sides offer before seeing the other's offer.
	if err := rSmall.Connect(context.Background(), large); err != nil {
		t.Fatalf("small Connect: %v", err)
	}
	if err := rLarge.Connect(context.Background(), small); err != nil {
		t.Fatalf("large Connect: %v", err)
	}
	offerFromSmall := sigSmall.waitForType(t, domain.EnvelopeTransportOffer)
	offerFromLarge := sigLarge.waitForType(t, domain.EnvelopeTransportOffer)

	// The smaller key receives the larger key's offer and must ignore it.
	rSmall.HandleEnvelope(domain.Envelope{
		Type:    domain.EnvelopeTransportOffer,
		From:    large,
		To:      small,
		Payload: offerFromLarge.Payload,
	})
	if got := len(sigSmall.byType(domain.EnvelopeTransportAnswer)); got != 0 {
		t.Errorf("smaller key published %d answers, want 0", got)
	}

	// The larger key receives the smaller key's offer and must yield.
	rLarge.HandleEnvelope(domain.Envelope{
		Type:    domain.EnvelopeTransportOffer,
		From:    small,
		To:      large,
		Payload: offerFromSmall.Payload,
	})
	answer := sigLarge.waitForType(t, domain.EnvelopeTransportAnswer)
	if answer.To != small {
		t.Errorf("answer to %s, want %s", answer.To, small)
	}
	var p domain.AnswerPayload
	if err := json.Unmarshal(answer.Payload, &p); err != nil {
		t.Fatalf("unmarshal answer: %v", err)
	}
	if p.SDP == "" {
		t.Error("answer SDP is empty")
	}

	// Exactly one negotiation survives: the smaller key's offer, answered
	// by the larger key. Neither side opened a second exchange.
	if got := len(sigSmall.byType(domain.EnvelopeTransportOffer)); got != 1 {
		t.Errorf("smaller key published %d offers, want 1", got)
	}
	if got := len(sigLarge.byType(domain.EnvelopeTransportOffer)); got != 1 {
		t.Errorf("larger key published %d offers, want 1", got)
	}
}

func TestDisconnectClosesLink(t *testing.T) {
	self, peer := keyWithByte(0x01), keyWithByte(0x02)
	sig := &fakeSignaler{}
	r := newRouter(t, self, sig, transport.Options{})

	if err := r.Connect(context.Background(), peer); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	r.Disconnect(peer)
	if got := r.LinkPhase(peer); got != domain.LinkClosed {
		t.Errorf("phase = %s after Disconnect, want %s", got, domain.LinkClosed)
	}

	// Relay still works on a closed link.
	if err := r.Send(context.Background(), peer, []byte("x")); err != nil {
		t.Fatalf("Send after Disconnect: %v", err)
	}
	if got := len(sig.byType(domain.EnvelopeRelayedCiphertext)); got != 1 {
		t.Errorf("got %d relayed envelopes, want 1", got)
	}
}
