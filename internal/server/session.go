package server

import (
	"errors"
	"log/slog"
	"net"

	"github.com/chatsrv/chatd/internal/chat"
)

// session drives the lifecycle of one client connection: the authentication
// handshake, the general-chat entry with history replay, the command loop,
// and teardown.
type session struct {
	srv  *Server
	conn *wireConn
	addr string

	// login is set once the handshake succeeds.
	login  string
	logger *slog.Logger
}

func newSession(srv *Server, conn net.Conn) *session {
	addr := conn.RemoteAddr().String()
	return &session{
		srv:  srv,
		conn: newWireConn(conn, srv.cfg.ReadBufferBytes),
		addr: addr,
		logger: srv.logger.With(
			slog.String("component", "server.session"),
			slog.String("addr", addr),
		),
	}
}

// run executes the full session lifecycle. It always leaves the connection
// unregistered and closed.
func (s *session) run() {
	defer s.srv.metrics.ConnClosed()

	s.logger.Info("client connected")
	s.srv.store.RegisterConnection(s.addr, s.conn)

	login, ok := s.authenticate()
	if !ok {
		s.teardown()
		return
	}
	s.login = login
	s.logger = s.logger.With(slog.String("login", login))

	s.enterGeneralChat()
	s.commandLoop()

	// Best-effort farewell; the peer may already be gone.
	_ = s.conn.write(msgDisconnected, true)
	s.srv.store.ReleaseAddress(s.login, s.addr)
	s.teardown()
}

func (s *session) teardown() {
	s.srv.store.RemoveConnection(s.addr)
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("close connection", slog.String("error", err.Error()))
	}
	s.logger.Info("client disconnected")
}

// ---- Handshake ----

// authenticate runs the entry loop: the client must pick /auth or /login.
// Any other input repeats the prompt. Returns the bound login, or false when
// the session ends without completing the handshake.
func (s *session) authenticate() (string, bool) {
	for {
		if err := s.conn.write(msgAuthOrLogin, true); err != nil {
			return "", false
		}

		line, err := s.conn.readCommand()
		if err != nil || line == "" {
			return "", false
		}

		switch line {
		case cmdAuth:
			return s.register()
		case cmdLogin:
			return s.loginExisting()
		default:
			if werr := s.conn.write(msgUnknownRepeat, true); werr != nil {
				return "", false
			}
		}
	}
}

// register collects fresh credentials and creates the account. The taken
// check during the prompt loop is advisory; RegisterUser re-checks
// atomically and a lost race sends the client back to the login prompt.
func (s *session) register() (string, bool) {
	for {
		login, password, ok := s.readCredentials(true)
		if !ok {
			return "", false
		}

		err := s.srv.store.RegisterUser(login, password, s.addr)
		if errors.Is(err, chat.ErrLoginTaken) {
			if werr := s.conn.write(msgLoginTaken, true); werr != nil {
				return "", false
			}
			continue
		}
		if err != nil {
			s.logger.Error("registration failed", slog.String("error", err.Error()))
			return "", false
		}

		if werr := s.conn.write(msgLoginSet, true); werr != nil {
			return "", false
		}
		s.srv.metrics.UserRegistered()
		return login, true
	}
}

// loginExisting authenticates against an existing account. A failed attempt
// reports the reason and ends the session.
func (s *session) loginExisting() (string, bool) {
	login, password, ok := s.readCredentials(false)
	if !ok {
		return "", false
	}

	err := s.srv.store.Authenticate(login, password, s.addr)
	switch {
	case errors.Is(err, chat.ErrUserNotFound):
		_ = s.conn.write(msgUserNotFound, true)
		return "", false
	case errors.Is(err, chat.ErrWrongPassword):
		_ = s.conn.write(msgWrongPassword, true)
		return "", false
	case err != nil:
		s.logger.Error("login failed", slog.String("error", err.Error()))
		return "", false
	}

	if werr := s.conn.write(msgLoginSuccessful, true); werr != nil {
		return "", false
	}
	return login, true
}

// readCredentials prompts for a login and a password. Empty logins repeat
// the prompt; when checkTaken is set, taken logins report and repeat.
func (s *session) readCredentials(checkTaken bool) (login, password string, ok bool) {
	for {
		if err := s.conn.write(msgInputLogin, false); err != nil {
			return "", "", false
		}
		login, err := s.conn.readCommand()
		if err != nil {
			return "", "", false
		}
		if login == "" {
			continue
		}
		if checkTaken && s.srv.store.LoginTaken(login) {
			if werr := s.conn.write(msgLoginTaken, true); werr != nil {
				return "", "", false
			}
			continue
		}

		if err := s.conn.write(msgInputPassword, false); err != nil {
			return "", "", false
		}
		password, err := s.conn.readCommand()
		if err != nil {
			return "", "", false
		}
		return login, password, true
	}
}

// ---- Chat ----

// enterGeneralChat announces the general chat and replays the recent public
// history, oldest first.
func (s *session) enterGeneralChat() {
	if err := s.conn.write(msgGeneralChat, true); err != nil {
		return
	}
	for _, m := range s.srv.store.PublicTail(s.srv.cfg.HistoryDepth) {
		if err := s.conn.write(m.Text, true); err != nil {
			return
		}
	}
}

// commandLoop reads and dispatches commands until the client exits, sends
// an empty line, or the connection fails.
func (s *session) commandLoop() {
	for {
		line, err := s.conn.readCommand()
		if err != nil || line == "" {
			return
		}
		if s.dispatch(line) == actionExit {
			return
		}
	}
}

// reply writes one response line, ignoring write errors: a failed write
// means the peer is gone and the next read will end the session.
func (s *session) reply(text string) {
	_ = s.conn.write(text, true)
}
