package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"sotto/internal/domain"
)

const (
	defaultNegotiationTimeout = 20 * time.Second
	defaultIdleTimeout        = 5 * time.Minute

	// dataChannelLabel names the single channel carrying session ciphertext.
	dataChannelLabel = "data"
)

// Options tune the router. Zero values fall back to defaults.
type Options struct {
	STUNServers        []string
	NegotiationTimeout time.Duration
	IdleTimeout        time.Duration
}

// Router delivers encrypted bytes to peers: over a direct data channel when
// one is open, otherwise as relayed-ciphertext envelopes through the
// signaling channel. Negotiation envelopes arrive via HandleEnvelope.
type Router struct {
	log     *slog.Logger
	self    domain.PeerKey
	selfRaw domain.X25519Public
	sig     domain.Signaler
	cfg     webrtc.Configuration

	negotiationTimeout time.Duration
	idleTimeout        time.Duration

	mu    sync.Mutex
	links map[domain.PeerKey]*link

	cbMu         sync.RWMutex
	onCiphertext func(peer domain.PeerKey, data []byte)
	onState      func(peer domain.PeerKey, phase domain.LinkPhase)

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// link is the per-peer direct-channel state.
type link struct {
	phase        domain.LinkPhase
	offering     bool // our own offer is outstanding
	pc           *webrtc.PeerConnection
	dc           *webrtc.DataChannel
	lastActivity time.Time
	timer        *time.Timer // negotiation deadline
}

var _ domain.TransportRouter = (*Router)(nil)

// NewRouter builds a router for the local peer key. The signaler carries
// negotiation envelopes and the relay fallback.
func NewRouter(log *slog.Logger, self domain.PeerKey, sig domain.Signaler, opts Options) (*Router, error) {
	selfRaw, err := self.Decode()
	if err != nil {
		return nil, fmt.Errorf("transport: bad local peer key: %w", err)
	}
	cfg := webrtc.Configuration{}
	if len(opts.STUNServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: opts.STUNServers}}
	}
	if opts.NegotiationTimeout <= 0 {
		opts.NegotiationTimeout = defaultNegotiationTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	r := &Router{
		log:                log,
		self:               self,
		selfRaw:            selfRaw,
		sig:                sig,
		cfg:                cfg,
		negotiationTimeout: opts.NegotiationTimeout,
		idleTimeout:        opts.IdleTimeout,
		links:              make(map[domain.PeerKey]*link),
		done:               make(chan struct{}),
	}
	r.wg.Add(1)
	go r.reapIdle()
	return r, nil
}

// OnCiphertext sets the single callback for inbound ciphertext from either
// path. Set it before any envelope is dispatched.
func (r *Router) OnCiphertext(fn func(peer domain.PeerKey, data []byte)) {
	r.cbMu.Lock()
	r.onCiphertext = fn
	r.cbMu.Unlock()
}

// OnStateChange sets the callback for link phase transitions.
func (r *Router) OnStateChange(fn func(peer domain.PeerKey, phase domain.LinkPhase)) {
	r.cbMu.Lock()
	r.onState = fn
	r.cbMu.Unlock()
}

// LinkPhase reports the direct-channel phase for peer.
func (r *Router) LinkPhase(peer domain.PeerKey) domain.LinkPhase {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.links[peer]; ok {
		return l.phase
	}
	return domain.LinkIdle
}

// Connect starts direct-channel negotiation with peer by publishing an
// offer. Already negotiating or open links are left alone. Negotiation
// that times out settles in the closed phase; the relay path stays usable
// throughout, so callers treat failure here as advisory.
func (r *Router) Connect(ctx context.Context, peer domain.PeerKey) error {
	if peer == r.self {
		return fmt.Errorf("transport: cannot connect to self")
	}
	r.mu.Lock()
	if l, ok := r.links[peer]; ok && (l.phase == domain.LinkOpen || l.phase == domain.LinkNegotiating) {
		r.mu.Unlock()
		return nil
	}
	l := &link{phase: domain.LinkNegotiating, offering: true, lastActivity: time.Now()}
	r.links[peer] = l
	r.mu.Unlock()
	r.emitState(peer, domain.LinkNegotiating)

	pc, err := webrtc.NewPeerConnection(r.cfg)
	if err != nil {
		r.closeLink(peer)
		return fmt.Errorf("transport: create peer connection: %w", err)
	}
	dc, err := pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		_ = pc.Close()
		r.closeLink(peer)
		return fmt.Errorf("transport: create data channel: %w", err)
	}
	r.wireDataChannel(peer, l, dc)
	r.wireConnection(peer, l, pc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		r.closeLink(peer)
		return fmt.Errorf("transport: create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		r.closeLink(peer)
		return fmt.Errorf("transport: set local description: %w", err)
	}

	r.mu.Lock()
	if r.links[peer] != l {
		// Superseded while we were building; discard our attempt.
		r.mu.Unlock()
		_ = pc.Close()
		return nil
	}
	l.pc = pc
	l.dc = dc
	l.timer = time.AfterFunc(r.negotiationTimeout, func() { r.negotiationExpired(peer, l) })
	r.mu.Unlock()

	if err := r.sig.Send(ctx, domain.EnvelopeTransportOffer, peer, domain.OfferPayload{SDP: offer.SDP}); err != nil {
		r.closeLink(peer)
		return fmt.Errorf("transport: publish offer: %w", err)
	}
	r.log.Debug("transport offer sent", "peer", peer)
	return nil
}

// Send delivers data to peer: directly when the link is open, otherwise as
// a relayed-ciphertext envelope. Success on the relay path means the
// publish was handed off.
func (r *Router) Send(ctx context.Context, peer domain.PeerKey, data []byte) error {
	r.mu.Lock()
	var dc *webrtc.DataChannel
	if l, ok := r.links[peer]; ok && l.phase == domain.LinkOpen && l.dc != nil {
		dc = l.dc
		l.lastActivity = time.Now()
	}
	r.mu.Unlock()

	if dc != nil {
		if err := dc.Send(data); err == nil {
			return nil
		} else {
			r.log.Warn("direct send failed, falling back to relay", "peer", peer, "error", err)
		}
	}
	if err := r.sig.Send(ctx, domain.EnvelopeRelayedCiphertext, peer, domain.CiphertextPayload{Data: data}); err != nil {
		return fmt.Errorf("transport: relay to %s: %w", peer, err)
	}
	return nil
}

// HandleEnvelope consumes one transport envelope from the signaling
// channel. Malformed payloads are dropped and logged; negotiation
// envelopes for unknown exchanges are ignored, since duplicates and
// stragglers are expected on an at-least-once channel.
func (r *Router) HandleEnvelope(env domain.Envelope) {
	switch env.Type {
	case domain.EnvelopeTransportOffer:
		var p domain.OfferPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			r.log.Debug("dropping malformed offer", "peer", env.From, "error", err)
			return
		}
		r.handleOffer(env.From, p)
	case domain.EnvelopeTransportAnswer:
		var p domain.AnswerPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			r.log.Debug("dropping malformed answer", "peer", env.From, "error", err)
			return
		}
		r.handleAnswer(env.From, p)
	case domain.EnvelopeTransportICE:
		var p domain.ICEPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			r.log.Debug("dropping malformed ice candidate", "peer", env.From, "error", err)
			return
		}
		r.handleICE(env.From, p)
	case domain.EnvelopeRelayedCiphertext:
		var p domain.CiphertextPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			r.log.Debug("dropping malformed relayed ciphertext", "peer", env.From, "error", err)
			return
		}
		r.emitCiphertext(env.From, p.Data)
	default:
		r.log.Debug("ignoring envelope type", "type", env.Type)
	}
}

// handleOffer runs the answerer flow for an inbound offer. On glare the
// side with the larger key discards its own offer and answers; the smaller
// side ignores the inbound offer and keeps waiting for its answer.
func (r *Router) handleOffer(peer domain.PeerKey, p domain.OfferPayload) {
	peerRaw, err := peer.Decode()
	if err != nil {
		r.log.Debug("dropping offer with bad peer key", "peer", peer, "error", err)
		return
	}

	r.mu.Lock()
	if l, ok := r.links[peer]; ok {
		if l.phase == domain.LinkOpen {
			r.mu.Unlock()
			r.log.Debug("ignoring offer for open link", "peer", peer)
			return
		}
		if l.phase == domain.LinkNegotiating {
			if !l.offering {
				// Already answering an earlier copy of this offer.
				r.mu.Unlock()
				return
			}
			if r.selfRaw.Compare(peerRaw) < 0 {
				// Our offer wins the race; the peer will answer it.
				r.mu.Unlock()
				r.log.Debug("glare: keeping own offer", "peer", peer)
				return
			}
			// Our key is larger: yield, drop our offer, answer theirs.
			r.log.Debug("glare: yielding to peer offer", "peer", peer)
			teardownLocked(l)
		}
	}
	l := &link{phase: domain.LinkNegotiating, lastActivity: time.Now()}
	r.links[peer] = l
	r.mu.Unlock()
	r.emitState(peer, domain.LinkNegotiating)

	fail := func(err error) {
		r.log.Warn("answering offer failed", "peer", peer, "error", err)
		r.closeLink(peer)
	}

	pc, err := webrtc.NewPeerConnection(r.cfg)
	if err != nil {
		fail(err)
		return
	}
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		r.mu.Lock()
		if cur, ok := r.links[peer]; ok && cur == l {
			cur.dc = dc
		}
		r.mu.Unlock()
		r.wireDataChannel(peer, l, dc)
	})
	r.wireConnection(peer, l, pc)

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}); err != nil {
		_ = pc.Close()
		fail(err)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		fail(err)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		fail(err)
		return
	}

	r.mu.Lock()
	if r.links[peer] != l {
		r.mu.Unlock()
		_ = pc.Close()
		return
	}
	l.pc = pc
	l.timer = time.AfterFunc(r.negotiationTimeout, func() { r.negotiationExpired(peer, l) })
	r.mu.Unlock()

	if err := r.sig.Send(context.Background(), domain.EnvelopeTransportAnswer, peer, domain.AnswerPayload{SDP: answer.SDP}); err != nil {
		fail(err)
		return
	}
	r.log.Debug("transport answer sent", "peer", peer)
}

func (r *Router) handleAnswer(peer domain.PeerKey, p domain.AnswerPayload) {
	r.mu.Lock()
	l, ok := r.links[peer]
	if !ok || !l.offering || l.pc == nil || l.phase != domain.LinkNegotiating {
		r.mu.Unlock()
		r.log.Debug("ignoring unexpected answer", "peer", peer)
		return
	}
	pc := l.pc
	r.mu.Unlock()

	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP}
	if err := pc.SetRemoteDescription(desc); err != nil {
		r.log.Warn("applying answer failed", "peer", peer, "error", err)
		r.closeLink(peer)
	}
}

func (r *Router) handleICE(peer domain.PeerKey, p domain.ICEPayload) {
	r.mu.Lock()
	l, ok := r.links[peer]
	if !ok || l.pc == nil {
		r.mu.Unlock()
		r.log.Debug("dropping ice candidate without negotiation", "peer", peer)
		return
	}
	pc := l.pc
	r.mu.Unlock()

	init := webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}
	if err := pc.AddICECandidate(init); err != nil {
		r.log.Debug("adding ice candidate failed", "peer", peer, "error", err)
	}
}

// Disconnect tears down the direct link for peer, if any. Relay remains
// available.
func (r *Router) Disconnect(peer domain.PeerKey) {
	r.closeLink(peer)
}

// Close tears down every link and stops the idle reaper.
func (r *Router) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	r.mu.Lock()
	peers := make([]domain.PeerKey, 0, len(r.links))
	for peer := range r.links {
		peers = append(peers, peer)
	}
	r.mu.Unlock()
	for _, peer := range peers {
		r.closeLink(peer)
	}
	r.wg.Wait()
	return nil
}

// wireDataChannel attaches the channel lifecycle and message handlers.
// Handlers act only while l is still the registered link for peer, so a
// discarded connection cannot disturb its replacement.
func (r *Router) wireDataChannel(peer domain.PeerKey, l *link, dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		r.mu.Lock()
		if r.links[peer] != l || l.phase == domain.LinkClosed {
			r.mu.Unlock()
			return
		}
		l.phase = domain.LinkOpen
		l.offering = false
		l.dc = dc
		l.lastActivity = time.Now()
		if l.timer != nil {
			l.timer.Stop()
			l.timer = nil
		}
		r.mu.Unlock()
		r.log.Info("direct channel open", "peer", peer)
		r.emitState(peer, domain.LinkOpen)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		r.mu.Lock()
		if r.links[peer] == l {
			l.lastActivity = time.Now()
		}
		r.mu.Unlock()
		r.emitCiphertext(peer, msg.Data)
	})
	dc.OnClose(func() {
		r.closeLinkIf(peer, l)
	})
}

// wireConnection watches the connection state. The data channel open event
// drives the open phase; this handler only tears down.
func (r *Router) wireConnection(peer domain.PeerKey, l *link, pc *webrtc.PeerConnection) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		p := domain.ICEPayload{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		}
		if err := r.sig.Send(context.Background(), domain.EnvelopeTransportICE, peer, p); err != nil {
			r.log.Debug("publishing ice candidate failed", "peer", peer, "error", err)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			r.closeLinkIf(peer, l)
		}
	})
}

// negotiationExpired settles a link that never opened. Timing out is not an
// error: the relay path remains in use.
func (r *Router) negotiationExpired(peer domain.PeerKey, l *link) {
	r.mu.Lock()
	cur, ok := r.links[peer]
	if !ok || cur != l || cur.phase != domain.LinkNegotiating {
		r.mu.Unlock()
		return
	}
	teardownLocked(cur)
	cur.phase = domain.LinkClosed
	r.mu.Unlock()
	r.log.Debug("direct channel negotiation timed out", "peer", peer)
	r.emitState(peer, domain.LinkClosed)
}

// closeLink transitions the peer's link to closed, releasing its resources.
func (r *Router) closeLink(peer domain.PeerKey) {
	r.mu.Lock()
	l, ok := r.links[peer]
	if !ok || l.phase == domain.LinkClosed {
		r.mu.Unlock()
		return
	}
	r.closeLocked(peer, l)
}

// closeLinkIf closes the peer's link only when l is still the registered
// one.
func (r *Router) closeLinkIf(peer domain.PeerKey, l *link) {
	r.mu.Lock()
	if r.links[peer] != l || l.phase == domain.LinkClosed {
		r.mu.Unlock()
		return
	}
	r.closeLocked(peer, l)
}

// closeLocked finishes the transition; it releases r.mu itself.
func (r *Router) closeLocked(peer domain.PeerKey, l *link) {
	teardownLocked(l)
	l.phase = domain.LinkClosed
	r.mu.Unlock()
	r.log.Debug("direct channel closed", "peer", peer)
	r.emitState(peer, domain.LinkClosed)
}

func teardownLocked(l *link) {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.pc != nil {
		go func(pc *webrtc.PeerConnection) { _ = pc.Close() }(l.pc)
		l.pc = nil
	}
	l.dc = nil
	l.offering = false
}

// reapIdle closes open links that carried no traffic for the idle window.
func (r *Router) reapIdle() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			var stale []domain.PeerKey
			r.mu.Lock()
			for peer, l := range r.links {
				if l.phase == domain.LinkOpen && now.Sub(l.lastActivity) > r.idleTimeout {
					stale = append(stale, peer)
				}
			}
			r.mu.Unlock()
			for _, peer := range stale {
				r.log.Debug("reaping idle direct channel", "peer", peer)
				r.closeLink(peer)
			}
		}
	}
}

func (r *Router) emitCiphertext(peer domain.PeerKey, data []byte) {
	r.cbMu.RLock()
	fn := r.onCiphertext
	r.cbMu.RUnlock()
	if fn != nil {
		fn(peer, data)
	}
}

func (r *Router) emitState(peer domain.PeerKey, phase domain.LinkPhase) {
	r.cbMu.RLock()
	fn := r.onState
	r.cbMu.RUnlock()
	if fn != nil {
		fn(peer, phase)
	}
}
