package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/lnpnet/internal/protocol/message"
	"github.com/danmuck/lnpnet/internal/protocol/payload"
	"github.com/danmuck/lnpnet/internal/protocol/rpc"
	"github.com/rs/zerolog/log"
)

// ErrUnsupportedRequest answers control messages the daemon does not serve.
var ErrUnsupportedRequest = errors.New("daemon: unsupported request")

// ControlRequests decodes what peers send to the daemon.
func ControlRequests() *payload.Registry {
	return message.NewControlRegistry()
}

// ControlReplies decodes what the daemon answers with.
func ControlReplies() *payload.Registry {
	r := message.NewReplyRegistry()
	payload.MustRegisterStrict[message.Init](r, message.TypeInit)
	payload.MustRegisterStrict[message.Pong](r, message.TypePong)
	return r
}

// ControlHandler answers Ping with Pong and Init with local. A Ping that
// asks for no Pong is acknowledged with SuccessNoArgs.
func ControlHandler(local message.Init) rpc.Handler {
	return func(_ context.Context, req payload.Message) (payload.Message, error) {
		switch m := req.(type) {
		case *message.Ping:
			pong, err := m.Reply()
			if errors.Is(err, message.ErrPongNotRequested) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return pong, nil
		case *message.Init:
			log.Debug().
				Int("global_features", len(m.GlobalFeatures)).
				Int("local_features", len(m.LocalFeatures)).
				Int("networks", len(m.Networks)).
				Msg("peer init")
			return local, nil
		case *message.Error:
			log.Warn().Str("error", m.Error()).Msg("peer reported error")
			return nil, nil
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedRequest, req.TypeID())
		}
	}
}
