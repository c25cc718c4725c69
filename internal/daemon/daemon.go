// Package daemon runs an lnpd node: one accept loop per listen address,
// a control request loop per session and the admin API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/lnpnet/internal/auth"
	"github.com/danmuck/lnpnet/internal/config"
	"github.com/danmuck/lnpnet/internal/protocol/addr"
	"github.com/danmuck/lnpnet/internal/protocol/message"
	"github.com/danmuck/lnpnet/internal/protocol/rpc"
	"github.com/danmuck/lnpnet/internal/protocol/session"
	"github.com/danmuck/lnpnet/internal/protocol/transport"
	"github.com/danmuck/lnpnet/internal/server"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var ErrNotServable = errors.New("daemon: address cannot serve requests")

// Service owns the node, its listeners and the admin API.
type Service struct {
	cfg     config.NodeConfig
	node    *session.Node
	zmq     *transport.ZmqContext
	tracker *session.Tracker
	hello   message.Init

	mu        sync.Mutex
	listeners []*session.Listener
	ready     chan struct{}
}

func NewService(ctx context.Context, cfg config.NodeConfig, local *session.LocalNode) (*Service, error) {
	if err := config.ValidateNodeConfig(cfg); err != nil {
		return nil, err
	}
	zctx := transport.NewZmqContext(ctx)
	tracker := session.NewTracker()
	node, err := session.NewNode(local, config.SessionConfig(cfg), session.WithZmqContext(zctx), session.WithTracker(tracker))
	if err != nil {
		_ = zctx.Close()
		return nil, err
	}
	return &Service{
		cfg:     cfg,
		node:    node,
		zmq:     zctx,
		tracker: tracker,
		ready:   make(chan struct{}),
	}, nil
}

func (s *Service) Node() *session.Node { return s.node }

func (s *Service) Tracker() *session.Tracker { return s.tracker }

// Ready is closed once every listener is bound.
func (s *Service) Ready() <-chan struct{} { return s.ready }

// Addrs returns the bound listener addresses.
func (s *Service) Addrs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l.Addr())
	}
	return out
}

// Run binds every listen address and serves until ctx is done or a
// listener fails.
func (s *Service) Run(ctx context.Context) error {
	defer s.zmq.Close()

	binds, err := s.cfg.ListenAddrs(s.node.Local().NodeID())
	if err != nil {
		return err
	}
	for _, b := range binds {
		if z, ok := b.(addr.ZmqSocketAddr); ok && z.API != addr.ZmqRPC && z.API != addr.ZmqP2P {
			return fmt.Errorf("%w: %s", ErrNotServable, b)
		}
		if r, ok := b.(addr.RemoteNodeAddr); ok && r.Remote.Proto == addr.ProtoZMQ &&
			r.Remote.API != addr.ZmqRPC && r.Remote.API != addr.ZmqP2P {
			return fmt.Errorf("%w: %s", ErrNotServable, b)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, b := range binds {
		l, err := s.node.Listen(ctx, b)
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("listen %s: %w", b, err)
		}
		s.mu.Lock()
		s.listeners = append(s.listeners, l)
		s.mu.Unlock()
		g.Go(func() error { return s.serve(ctx, l) })
	}
	close(s.ready)

	peers, err := s.cfg.PeerAddrs()
	if err != nil {
		s.closeListeners()
		return err
	}
	for _, p := range peers {
		g.Go(func() error {
			s.keepPeer(ctx, p)
			return nil
		})
	}

	if admin := strings.TrimSpace(s.cfg.AdminAddr); admin != "" {
		opts := []server.Option{server.WithCORS(s.cfg.AdminCorsOrigins)}
		if s.cfg.AdminToken != "" {
			opts = append(opts, server.WithAuth(auth.StaticToken{Token: s.cfg.AdminToken}))
		}
		api := server.New(s.node.Local().String(), s.tracker, opts...)
		g.Go(func() error { return api.ListenAndServe(ctx, admin) })
	}
	log.Info().Str("node_id", s.node.Local().String()).Int("listeners", len(binds)).Msg("lnpd running")

	g.Go(func() error {
		<-ctx.Done()
		s.closeListeners()
		return nil
	})
	return g.Wait()
}

func (s *Service) closeListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listeners {
		_ = l.Close()
	}
}

// serve accepts connections on l until ctx is done. Handshakes run in each
// connection's own goroutine, never on the accept loop.
// A ZMQ listener yields its single bound socket once, after which the
// loop just waits.
func (s *Service) serve(ctx context.Context, l *session.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	backoff := s.node.Config().Backoff
	accepted, failures := 0, 0
	for {
		conn, err := l.AcceptConn(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case l.Bind().Proto() == addr.ProtoZMQ && accepted > 0:
			<-ctx.Done()
			return nil
		case errors.Is(err, session.ErrTransportTimeout):
			failures++
			delay := session.NextBackoffDelay(backoff, failures, rng)
			log.Warn().Str("addr", l.Addr()).Dur("delay", delay).Err(err).Msg("accept failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		default:
			return fmt.Errorf("accept %s: %w", l.Addr(), err)
		}

		accepted++
		failures = 0
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := l.Establish(ctx, conn)
			if err != nil {
				log.Debug().Str("addr", l.Addr()).Str("remote", conn.RemoteAddr()).Err(err).Msg("inbound peer dropped")
				return
			}
			s.handle(ctx, sess)
		}()
	}
}

func (s *Service) handle(ctx context.Context, sess *session.Session) {
	err := rpc.Serve(ctx, sess, ControlRequests(), ControlReplies(), ControlHandler(s.hello))
	if err != nil && ctx.Err() == nil {
		log.Warn().Str("session", sess.ID()).Err(err).Msg("session ended")
	}
}
