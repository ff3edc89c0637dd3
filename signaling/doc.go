// Package signaling maintains the chat/control data channel that runs
// alongside a media call.
//
// Envelopes are a closed tagged variant: chat messages, system/control
// notices and media-control updates each carry their own well-typed
// payload. The channel keeps at most one open data session per remote
// address, decodes inbound bytes into envelopes, and appends outbound
// chat messages to a local echo log so the sender's UI reflects the
// message without waiting for the network.
//
// A chat-only disconnect is non-fatal: tearing down the channel never
// ends the call it accompanied.
package signaling
