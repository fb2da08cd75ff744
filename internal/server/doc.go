// Package server implements the TCP chat server: the listener, the
// per-connection session driver (authentication handshake followed by the
// interactive command loop), the command dispatcher, and the fan-out
// delivery engine.
package server
