// Command client is a minimal reference Mumble control-plane client:
// it completes the Version/Authenticate handshake against a Hub or
// Edge listener, logs the channel/user state the server sends, and
// lets the operator send text messages from stdin (§4.7, §6). It
// does not capture or play audio; --force-tcp-voice only documents
// the session's voice transport preference to the operator.
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mumble.info/grumble/pkg/config"
	"mumble.info/grumble/pkg/framing"
	"mumble.info/grumble/pkg/mumbleproto"
)

func main() {
	root := &cobra.Command{Use: "client"}

	connectCmd := &cobra.Command{
		Use:   "connect",
		Short: "connect to a Hub or Edge control listener",
	}
	cfg := config.BindClientFlags(connectCmd)
	connectCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runConnect(*cfg)
	}
	root.AddCommand(connectCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runConnect(cfg config.ClientConfig) error {
	log := newLogger()

	if cfg.Host == "" || cfg.Username == "" {
		fmt.Fprintln(os.Stderr, "client: --host and --username are required")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dialer := &tls.Dialer{Config: &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("client: connect failed")
		os.Exit(1)
	}
	defer conn.Close()

	c := &client{conn: conn, log: log, cfg: cfg}

	if cfg.ForceTCPVoice {
		log.Info().Msg("client: voice will tunnel over the control connection, no direct UDP path")
	}

	if err := c.handshake(ctx); err != nil {
		log.Error().Err(err).Msg("client: handshake failed")
		os.Exit(1)
	}

	go c.readLoop()
	go c.pingLoop(ctx)
	c.repl(ctx)

	return nil
}

type client struct {
	conn    net.Conn
	log     zerolog.Logger
	cfg     config.ClientConfig
	session uint32
	channel uint32
}

// handshake runs the Version/Authenticate exchange a Mumble server
// expects before it admits the connection (§4.7).
func (c *client) handshake(ctx context.Context) error {
	v := &mumbleproto.Version{
		VersionV2: u64p(1<<48 | 5<<24),
		Release:   strp("grumble-client"),
	}
	if err := c.send(v); err != nil {
		return fmt.Errorf("client: sending version: %w", err)
	}

	auth := &mumbleproto.Authenticate{
		Username: strp(c.cfg.Username),
		Opus:     boolp(true),
	}
	if c.cfg.Password != "" {
		auth.Password = strp(c.cfg.Password)
	}
	if len(c.cfg.Tokens) > 0 {
		auth.Tokens = c.cfg.Tokens
	}
	if err := c.send(auth); err != nil {
		return fmt.Errorf("client: sending authenticate: %w", err)
	}
	return nil
}

func (c *client) send(msg mumbleproto.Message) error {
	return framing.WriteFrame(c.conn, mumbleproto.MessageType(msg), mumbleproto.Encode(msg))
}

// readLoop decodes and logs every frame the server sends until the
// connection closes.
func (c *client) readLoop() {
	for {
		frame, err := framing.ReadFrame(c.conn)
		if err != nil {
			if err != io.EOF {
				c.log.Error().Err(err).Msg("client: read failed")
			}
			c.log.Info().Msg("client: disconnected")
			os.Exit(0)
		}

		if frame.Type == mumbleproto.TypeUDPTunnel {
			continue // voice frame; not decoded by this reference client
		}

		msg, err := mumbleproto.Decode(frame.Type, frame.Payload)
		if err != nil {
			c.log.Warn().Err(err).Uint16("type", frame.Type).Msg("client: malformed frame")
			continue
		}

		switch m := msg.(type) {
		case *mumbleproto.Reject:
			c.log.Error().Str("reason", derefStr(m.Reason)).Msg("client: rejected")
		case *mumbleproto.ServerSync:
			c.session = derefU32(m.Session)
			c.log.Info().Uint32("session", c.session).Str("welcome", derefStr(m.WelcomeText)).Msg("client: synced")
		case *mumbleproto.ChannelState:
			c.log.Info().Uint32("channel", derefU32(m.ChannelId)).Str("name", derefStr(m.Name)).Msg("client: channel")
		case *mumbleproto.UserState:
			if derefU32(m.Session) == c.session && m.ChannelId != nil {
				c.channel = *m.ChannelId
			}
			c.log.Info().Uint32("session", derefU32(m.Session)).Str("name", derefStr(m.Name)).Msg("client: user state")
		case *mumbleproto.TextMessage:
			c.log.Info().Uint32("from", derefU32(m.Actor)).Str("text", derefStr(m.Message)).Msg("client: message")
		case *mumbleproto.Ping:
			// server echo; no action needed
		default:
			c.log.Debug().Uint16("type", frame.Type).Msg("client: unhandled message")
		}
	}
}

// pingLoop keeps the control connection alive the way every Mumble
// client does, once every ten seconds.
func (c *client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.send(&mumbleproto.Ping{Timestamp: u64p(uint64(time.Now().Unix()))})
		}
	}
}

// repl reads lines from stdin and sends each as a text message to the
// session's current channel, until ctx is canceled or stdin closes.
func (c *client) repl(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				continue
			}
			msg := &mumbleproto.TextMessage{ChannelId: []uint32{c.channel}, Message: strp(line)}
			if err := c.send(msg); err != nil {
				c.log.Error().Err(err).Msg("client: sending text message failed")
				return
			}
		}
	}
}

func newLogger() zerolog.Logger {
	level, err := config.ParseLogLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = config.LogLevelInfo
	}
	zlevel, _ := zerolog.ParseLevel(string(level))
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zlevel).With().Timestamp().Logger()
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefU32(v *uint32) uint32 {
	if v == nil {
		return 0
	}
	return *v
}

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }
func u64p(v uint64) *uint64 { return &v }
