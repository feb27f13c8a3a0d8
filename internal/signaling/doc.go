// Package signaling is the relay side of the call service: it assigns ids to
// WebSocket clients, keeps every client informed of who else is online and
// forwards directed envelopes (call setup, ICE, chat) between them.
//
// The relay never inspects SDP or candidates. It only rewrites the addressing
// so the receiver learns who sent an envelope and cannot be told otherwise.
package signaling
