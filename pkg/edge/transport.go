package edge

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/rs/zerolog"

	"mumble.info/grumble/pkg/cluster"
	"mumble.info/grumble/pkg/rpc"
)

// hubTransport implements pkg/cluster.Transport over an rpc.Conn to the
// Hub, translating the lifecycle's abstract steps into the concrete
// edge.* RPCs (§4.14, §4.15).
type hubTransport struct {
	log    zerolog.Logger
	info   rpc.EdgeJoinParams
	dial   func(ctx context.Context) (*rpc.Conn, error)
	server *Server

	conn *rpc.Conn
}

func newHubTransport(log zerolog.Logger, server *Server, info rpc.EdgeJoinParams, dial func(ctx context.Context) (*rpc.Conn, error)) *hubTransport {
	return &hubTransport{log: log, info: info, dial: dial, server: server}
}

func (t *hubTransport) ensureConn(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	t.server.bindHubNotifications(conn)
	t.conn = conn
	return nil
}

func (t *hubTransport) Register(ctx context.Context) error {
	if err := t.ensureConn(ctx); err != nil {
		return err
	}
	var result rpc.EdgeRegisterResult
	err := t.conn.Call(ctx, rpc.MethodEdgeRegister, rpc.EdgeRegisterParams{
		ServerID: t.info.ServerID,
		Name:     t.info.Name,
		Host:     t.info.Host,
		Port:     t.info.Port,
	}, &result)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("edge: hub rejected registration")
	}
	return nil
}

func (t *hubTransport) Join(ctx context.Context) ([]*cluster.EdgeInfo, error) {
	var result rpc.EdgeJoinResult
	if err := t.conn.Call(ctx, rpc.MethodEdgeJoin, t.info, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("edge: hub rejected join")
	}
	peers := make([]*cluster.EdgeInfo, 0, len(result.Peers))
	for _, p := range result.Peers {
		peers = append(peers, &cluster.EdgeInfo{ID: p.ID, Host: p.Host, VoicePort: p.VoicePort})
	}
	t.server.joinToken = result.Token
	return peers, nil
}

func (t *hubTransport) JoinComplete(ctx context.Context, connectedPeers []string) error {
	return t.conn.Call(ctx, rpc.MethodEdgeJoinComplete, rpc.EdgeJoinCompleteParams{
		ServerID:       t.info.ServerID,
		Token:          t.server.joinToken,
		ConnectedPeers: connectedPeers,
	}, nil)
}

func (t *hubTransport) Heartbeat(ctx context.Context) error {
	var result rpc.EdgeHeartbeatResult
	return t.conn.Call(ctx, rpc.MethodEdgeHeartbeat, rpc.EdgeHeartbeatParams{
		ServerID: t.info.ServerID,
		Stats: rpc.EdgeStats{
			Clients: t.server.sessions.Len(),
		},
	}, &result)
}

func (t *hubTransport) FullSync(ctx context.Context) error {
	var result rpc.EdgeFullSyncResult
	if err := t.conn.Call(ctx, rpc.MethodEdgeFullSync, struct{}{}, &result); err != nil {
		return err
	}
	return t.server.applyFullSync(result)
}

func (t *hubTransport) Reconnect(ctx context.Context) error {
	t.conn = nil
	return t.ensureConn(ctx)
}

func (t *hubTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

// dialHub opens a TLS connection to the Hub's control listener and
// wraps it as an rpc.Conn (§4.14 "single TLS stream per Edge").
func dialHub(ctx context.Context, log zerolog.Logger, addr string, tlsConfig *tls.Config) (*rpc.Conn, error) {
	dialer := tls.Dialer{Config: tlsConfig}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("edge: dialing hub %s: %w", addr, err)
	}
	return rpc.NewConn(log, raw), nil
}
