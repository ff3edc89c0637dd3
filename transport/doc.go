// Package transport is the facade over the external peer-to-peer
// transport.
//
// The underlying network (address registration, ICE negotiation, SDP
// exchange, NAT traversal) is an external collaborator consumed behind
// the Network interface. This package owns exactly one registration at a
// time, translates the network's callbacks into a small bounded event set
// delivered on a single channel, and manages the local media device
// handle so that it is released on every exit path.
//
// Event consumers read from Handle.Events. The intended consumer is a
// single goroutine (the call orchestrator's actor loop); the channel is
// the serialization boundary between the network's callback threads and
// call state.
package transport
