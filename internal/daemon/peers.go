package daemon

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/danmuck/lnpnet/internal/protocol/addr"
	"github.com/danmuck/lnpnet/internal/protocol/message"
	"github.com/danmuck/lnpnet/internal/protocol/rpc"
	"github.com/danmuck/lnpnet/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// KeepaliveInterval is how often an outbound peer session is pinged.
var KeepaliveInterval = 30 * time.Second

// Greet exchanges Init messages over an established session.
func Greet(sess *session.Session, local message.Init) (*message.Init, error) {
	client := rpc.NewClient(sess, ControlRequests(), ControlReplies())
	rep, err := client.Request(local)
	if err != nil {
		return nil, err
	}
	hello, ok := rep.(*message.Init)
	if !ok {
		return nil, fmt.Errorf("init: unexpected reply %T", rep)
	}
	return hello, nil
}

// keepPeer connects to target, greets it and pings it until ctx is done
// or the session fails. It reconnects after failures.
func (s *Service) keepPeer(ctx context.Context, target addr.NodeAddr) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	cfg := s.node.Config()
	for round := 1; ctx.Err() == nil; round++ {
		err := s.runPeer(ctx, target, cfg, rng)
		if ctx.Err() != nil {
			return
		}
		if !session.Retryable(err) {
			log.Error().Str("peer", target.String()).Err(err).Msg("peer dropped")
			return
		}
		delay := session.NextBackoffDelay(cfg.Backoff, round, rng)
		log.Warn().Str("peer", target.String()).Dur("delay", delay).Err(err).Msg("peer session lost")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *Service) runPeer(ctx context.Context, target addr.NodeAddr, cfg session.Config, rng *rand.Rand) error {
	sess, err := session.ConnectWithRetry(ctx, func(ctx context.Context) (*session.Session, error) {
		return s.node.Connect(ctx, target)
	}, cfg, rng)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = sess.Close() })
	defer stop()
	defer sess.Close()

	remote, err := Greet(sess, s.hello)
	if err != nil {
		return err
	}
	log.Info().
		Str("peer", target.String()).
		Str("session", sess.ID()).
		Int("networks", len(remote.Networks)).
		Msg("peer connected")

	client := rpc.NewClient(sess, ControlRequests(), ControlReplies())
	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := client.Request(message.Ping{}); err != nil {
			return err
		}
	}
}
