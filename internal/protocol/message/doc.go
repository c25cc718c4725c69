// Package message defines the built-in message sets: the peer control
// messages exchanged right after a session is established and the generic
// reply set used by request/reply services.
package message
