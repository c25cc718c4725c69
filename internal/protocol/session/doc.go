// Package session turns transport connections into established sessions.
//
// A Node owns the local identity and dispatches Connect, Accept and Listen
// over the address kinds in package addr. Remote stream and WebSocket
// connections run a Noise handshake before the Session is returned; ZMQ
// and unix socket connections use the Plain transcoder.
//
// A Session is single writer, single reader. Split hands out a SendHalf
// and a RecvHalf that may be driven from separate goroutines. Any fatal
// error closes the transport and every later call returns
// ErrConnectionClosed.
package session
