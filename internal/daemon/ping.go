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
)

// PingResult is the outcome of one Ping round trip.
type PingResult struct {
	Seq  int
	RTT  time.Duration
	Size int
}

// Ping connects to target with retries and sends count pings of size
// padding bytes each. Results are reported through report as they arrive.
func Ping(ctx context.Context, node *session.Node, target addr.NodeAddr, count int, size uint16, report func(PingResult)) error {
	cfg := node.Config()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	sess, err := session.ConnectWithRetry(ctx, func(ctx context.Context) (*session.Session, error) {
		return node.Connect(ctx, target)
	}, cfg, rng)
	if err != nil {
		return err
	}
	defer sess.Close()

	client := rpc.NewClient(sess, ControlRequests(), ControlReplies())
	for seq := 1; seq <= count; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		started := time.Now()
		rep, err := client.Request(message.Ping{NumPongBytes: size})
		if err != nil {
			return err
		}
		pong, ok := rep.(*message.Pong)
		if !ok {
			return fmt.Errorf("ping %d: unexpected reply %T", seq, rep)
		}
		if report != nil {
			report(PingResult{Seq: seq, RTT: time.Since(started), Size: len(pong.Ignored)})
		}
	}
	return nil
}
