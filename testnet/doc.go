// Package testnet provides an in-memory implementation of the transport
// boundary for tests and examples.
//
// A Broker routes registrations, media calls and data sessions between
// Network instances inside one process, with no real networking. It
// reproduces the observable behavior of a signaling broker: asynchronous
// open confirmation, paired media/data sessions, session-closed
// propagation, and simulated disconnects.
package testnet
