package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// LifecycleState is the Edge's connection state to the Hub (§4.15).
type LifecycleState int

const (
	StateDisconnected LifecycleState = iota
	StateRegistering
	StateJoining
	StateConnected
	StateReconnecting
)

// Transport abstracts the Hub RPC calls the lifecycle needs, so this
// package stays free of the msgpack wire format (implemented by
// pkg/rpc and satisfied by the Edge's RPC client).
type Transport interface {
	Register(ctx context.Context) error
	Join(ctx context.Context) ([]*EdgeInfo, error)
	JoinComplete(ctx context.Context, connectedPeers []string) error
	Heartbeat(ctx context.Context) error
	FullSync(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Close() error
}

// VoiceEndpoints registers and tears down per-peer voice UDP endpoints
// during join/full-disconnect (§4.15).
type VoiceEndpoints interface {
	AddPeer(ctx context.Context, peer *EdgeInfo) error
	RemovePeer(peerID string)
	RemoveAll()
}

// Lifecycle drives one Edge's connect/reconnect state machine against
// the Hub (§4.15, Testable Scenario S5).
type Lifecycle struct {
	log       zerolog.Logger
	transport Transport
	voice     VoiceEndpoints

	reconnectInterval time.Duration
	reconnectWindow   time.Duration
	rejoinDelay       time.Duration

	mu    sync.Mutex
	state LifecycleState
	token string
}

// NewLifecycle builds a Lifecycle with the §5 default timings
// (reconnect every 2s for up to 10s, then a 5s rejoin delay).
func NewLifecycle(log zerolog.Logger, transport Transport, voice VoiceEndpoints) *Lifecycle {
	return &Lifecycle{
		log:               log,
		transport:         transport,
		voice:             voice,
		reconnectInterval: 2 * time.Second,
		reconnectWindow:   10 * time.Second,
		rejoinDelay:       5 * time.Second,
		state:             StateDisconnected,
	}
}

// SetTimings overrides the reconnect interval/window/rejoin delay,
// used by tests to avoid waiting out the production defaults.
func (l *Lifecycle) SetTimings(reconnectInterval, reconnectWindow, rejoinDelay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reconnectInterval = reconnectInterval
	l.reconnectWindow = reconnectWindow
	l.rejoinDelay = rejoinDelay
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() LifecycleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lifecycle) setState(s LifecycleState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Start runs the register -> join -> joinComplete startup sequence
// once (§4.15 "Startup sequence").
func (l *Lifecycle) Start(ctx context.Context) error {
	l.setState(StateRegistering)
	if err := l.transport.Register(ctx); err != nil {
		return err
	}

	l.setState(StateJoining)
	peers, err := l.transport.Join(ctx)
	if err != nil {
		return err
	}

	connected, err := l.connectPeers(ctx, peers)
	if err != nil {
		return err
	}

	if err := l.transport.JoinComplete(ctx, connected); err != nil {
		return err
	}

	if err := l.transport.FullSync(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	l.token = uuid.NewString()
	l.mu.Unlock()

	l.setState(StateConnected)
	return nil
}

// connectPeers registers a voice endpoint for every peer concurrently
// (§4.15 "register peer voice endpoints"), grounded on §9's guidance
// to replace callback chaining with straightforward concurrent setup.
func (l *Lifecycle) connectPeers(ctx context.Context, peers []*EdgeInfo) ([]string, error) {
	var mu sync.Mutex
	var connected []string

	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range peers {
		peer := peer
		g.Go(func() error {
			if err := l.voice.AddPeer(gctx, peer); err != nil {
				return err
			}
			mu.Lock()
			connected = append(connected, peer.ID)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return connected, nil
}

// PeerJoined adds a newly joined peer's voice endpoint
// (`edge.peerJoined` notification, §4.15).
func (l *Lifecycle) PeerJoined(ctx context.Context, peer *EdgeInfo) error {
	return l.voice.AddPeer(ctx, peer)
}

// PeerLeft drops a departed peer's voice endpoint (`edge.peerLeft`).
func (l *Lifecycle) PeerLeft(peerID string) {
	l.voice.RemovePeer(peerID)
}

// HandleDisconnect runs the reconnect-then-full-disconnect sequence
// after losing the Hub TCP connection (§4.15, Testable Scenario S5).
// disconnectClients is invoked once, only if reconnection exhausts the
// window, to close every local client with a transient reason and
// clear in-memory state; it is supplied by the Edge server so this
// package does not depend on the client connection type.
func (l *Lifecycle) HandleDisconnect(ctx context.Context, disconnectClients func()) error {
	l.setState(StateReconnecting)

	deadline := time.Now().Add(l.reconnectWindow)
	ticker := time.NewTicker(l.reconnectInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.transport.Reconnect(ctx); err == nil {
				l.setState(StateConnected)
				return nil
			}
		}
	}

	l.fullDisconnect(disconnectClients)

	time.Sleep(l.rejoinDelay)
	return l.Start(ctx)
}

// ForceDisconnect handles `edge.forceDisconnect`: immediate full
// disconnect and rejoin, no reconnect attempt first.
func (l *Lifecycle) ForceDisconnect(ctx context.Context, disconnectClients func()) error {
	l.fullDisconnect(disconnectClients)
	time.Sleep(l.rejoinDelay)
	return l.Start(ctx)
}

func (l *Lifecycle) fullDisconnect(disconnectClients func()) {
	l.voice.RemoveAll()
	disconnectClients()
	l.setState(StateDisconnected)
}
