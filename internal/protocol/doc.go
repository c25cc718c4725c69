// Package protocol owns the LNP wire contract and its parsing primitives.
//
// Ownership boundary:
// - strict: canonical binary codec
// - tlv: extension streams layered on strict records
// - payload: type id envelope and dispatch registry
// - frame: length-prefixed stream framing
// - transcoder: plain and noise frame encryption
// - addr, transport, session: peer addressing and authenticated channels
package protocol
