// Package rpc runs request/reply exchanges over a session. Every request
// is answered by exactly one reply; failures travel as message.Failure.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/lnpnet/internal/protocol/message"
	"github.com/danmuck/lnpnet/internal/protocol/payload"
	"github.com/danmuck/lnpnet/internal/protocol/session"
	"github.com/danmuck/lnpnet/internal/protocol/transcoder"
	"github.com/rs/zerolog/log"
)

var ErrRemote = errors.New("rpc: remote failure")

// RemoteError is a Failure reply returned by the peer.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: remote failure: %s", e.Message)
}

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// Conn is the part of a session the client needs.
type Conn interface {
	SendMessage(reg *payload.Registry, m payload.Message) error
	RecvMessage(reg *payload.Registry) (payload.Message, error)
}

// Client issues one request at a time.
type Client struct {
	conn     Conn
	requests *payload.Registry
	replies  *payload.Registry

	mu sync.Mutex
}

// NewClient encodes requests with requests and decodes answers with
// replies. A nil replies uses message.NewReplyRegistry.
func NewClient(conn Conn, requests, replies *payload.Registry) *Client {
	if replies == nil {
		replies = message.NewReplyRegistry()
	}
	return &Client{conn: conn, requests: requests, replies: replies}
}

// Request sends req and waits for its reply. A Failure reply is returned
// as *RemoteError.
func (c *Client) Request(req payload.Message) (payload.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SendMessage(c.requests, req); err != nil {
		return nil, err
	}
	rep, err := c.conn.RecvMessage(c.replies)
	if err != nil {
		return nil, err
	}
	if f, ok := rep.(*message.Failure); ok {
		return nil, &RemoteError{Message: f.Message}
	}
	return rep, nil
}

// Handler answers one request. A nil reply with a nil error is sent as
// SuccessNoArgs; an error is sent as Failure.
type Handler func(ctx context.Context, req payload.Message) (payload.Message, error)

// Serve answers requests on s until the session closes or ctx is done,
// closing s on return. Requests that fail to decode are answered with a
// Failure and the loop continues.
func Serve(ctx context.Context, s *session.Session, requests, replies *payload.Registry, h Handler) error {
	if replies == nil {
		replies = message.NewReplyRegistry()
	}
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()
	defer s.Close()

	for {
		req, err := s.RecvMessage(requests)
		switch {
		case errors.Is(err, session.ErrConnectionClosed):
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return nil
		case err != nil && s.State() == transcoder.StateClosed:
			return err
		case err != nil:
			log.Debug().Str("session", s.ID()).Err(err).Msg("rpc request rejected")
			if err := s.SendMessage(replies, message.Failure{Message: err.Error()}); err != nil {
				return err
			}
			continue
		}

		rep, err := h(ctx, req)
		if err != nil {
			rep = message.Failure{Message: err.Error()}
		} else if payload.IsNil(rep) {
			rep = message.SuccessNoArgs{}
		}
		log.Debug().Str("session", s.ID()).Stringer("request", req.TypeID()).Stringer("reply", rep.TypeID()).Msg("rpc request served")
		err = s.SendMessage(replies, rep)
		if errors.Is(err, payload.ErrUnknownType) || errors.Is(err, payload.ErrTypeMismatch) {
			err = s.SendMessage(replies, message.Failure{Message: err.Error()})
		}
		if err != nil {
			return err
		}
	}
}
