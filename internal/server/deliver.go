package server

import (
	"log/slog"

	"github.com/chatsrv/chatd/internal/chat"
)

// broadcast writes one line to every currently connected client, including
// clients still in the authentication handshake.
func (s *Server) broadcast(text string) {
	for addr, c := range s.store.SnapshotConnections() {
		s.deliverOne(addr, c, text)
	}
}

// deliverToAddrs writes one line to each address that still has a registered
// connection. Addresses that went away since the caller snapshotted them are
// skipped.
func (s *Server) deliverToAddrs(text string, addrs []string) {
	for _, addr := range addrs {
		c, ok := s.store.Connection(addr)
		if !ok {
			continue
		}
		s.deliverOne(addr, c, text)
	}
}

// deliverOne writes one line to one peer. A failed write drops the address
// from active connections and closes the socket; delivery to the remaining
// recipients continues. The failed peer's own session driver notices the
// closed socket on its next read and finishes its teardown.
func (s *Server) deliverOne(addr string, c chat.Conn, text string) {
	err := c.WriteLine(text)
	if err == nil {
		return
	}

	s.metrics.DeliveryFailed()
	s.logger.Error("delivery failed, dropping connection",
		slog.String("addr", addr),
		slog.String("error", err.Error()),
	)

	if dropped, ok := s.store.RemoveConnection(addr); ok {
		if cerr := dropped.Close(); cerr != nil {
			s.logger.Debug("close dropped connection",
				slog.String("addr", addr),
				slog.String("error", cerr.Error()),
			)
		}
	}
}
