// Package storage provides the persistence gateway for profiles, contacts,
// call history, preferences and device settings.
//
// The gateway is a key-value boundary keyed by (user ID, logical key). Two
// implementations are provided: an in-memory gateway used as the default
// and as the fallback, and a Redis-backed gateway for durable storage.
// Callers treat non-critical writes (history, last-call timestamps) as
// fire-and-forget: failures are logged by the caller and never block a
// call-state transition.
package storage
