package server_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chatsrv/chatd/internal/chat"
	"github.com/chatsrv/chatd/internal/config"
	"github.com/chatsrv/chatd/internal/server"
)

const testTimeout = 5 * time.Second

// startServer boots a server on an ephemeral port with a pinned clock and
// returns its address and store. The server is shut down and fully drained
// during test cleanup.
func startServer(t *testing.T, mutate func(*config.Config)) (string, *chat.Store) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Listen.Addr = "127.0.0.1:0"
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// A pinned, strictly increasing clock: timestamps stay ordered for the
	// unread window, yet the whole test remains inside one rate-limit hour.
	var mu sync.Mutex
	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	store := chat.NewStore(logger, chat.WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		at = at.Add(time.Millisecond)
		return at
	}))

	srv := server.New(cfg, store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case <-srv.Ready():
	case <-time.After(testTimeout):
		cancel()
		t.Fatal("server did not become ready")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("server Run() error: %v", err)
			}
		case <-time.After(testTimeout):
			t.Error("server did not shut down")
		}
	})

	return srv.Addr().String(), store
}

// client is a test-side protocol peer. Every send is one write (one
// protocol command); expect scans the inbound stream for a substring,
// consuming it so repeated expectations match fresh data only.
type client struct {
	t    *testing.T
	conn net.Conn
	buf  string
	pos  int
	tmp  []byte
}

func dial(t *testing.T, addr string) *client {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, testTimeout)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &client{t: t, conn: conn, tmp: make([]byte, 4096)}
}

func (c *client) send(line string) {
	c.t.Helper()

	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.t.Fatalf("send %q: %v", line, err)
	}
}

// expect blocks until substr arrives, then consumes through its end.
func (c *client) expect(substr string) {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(testTimeout))
	for {
		if idx := strings.Index(c.buf[c.pos:], substr); idx >= 0 {
			c.pos += idx + len(substr)
			return
		}
		n, err := c.conn.Read(c.tmp)
		if n > 0 {
			c.buf += string(c.tmp[:n])
			continue
		}
		if err != nil {
			c.t.Fatalf("waiting for %q: %v (unconsumed: %q)", substr, err, c.buf[c.pos:])
		}
	}
}

// capture blocks until prefix arrives, then returns the rest of that line.
func (c *client) capture(prefix string) string {
	c.t.Helper()

	c.expect(prefix)
	for {
		if idx := strings.Index(c.buf[c.pos:], "\n"); idx >= 0 {
			value := c.buf[c.pos : c.pos+idx]
			c.pos += idx + 1
			return strings.TrimSpace(value)
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(testTimeout))
		n, err := c.conn.Read(c.tmp)
		if n > 0 {
			c.buf += string(c.tmp[:n])
			continue
		}
		if err != nil {
			c.t.Fatalf("waiting for line after %q: %v", prefix, err)
		}
	}
}

// assertSilent reads for the given window and fails if substr shows up in
// anything received but not yet consumed.
func (c *client) assertSilent(substr string, window time.Duration) {
	c.t.Helper()

	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		_ = c.conn.SetReadDeadline(deadline)
		n, err := c.conn.Read(c.tmp)
		if n > 0 {
			c.buf += string(c.tmp[:n])
		}
		if err != nil {
			break
		}
	}
	if strings.Contains(c.buf[c.pos:], substr) {
		c.t.Errorf("received %q, want silence (unconsumed: %q)", substr, c.buf[c.pos:])
	}
}

// expectClosed blocks until the server closes the connection.
func (c *client) expectClosed() {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(testTimeout))
	for {
		n, err := c.conn.Read(c.tmp)
		if n > 0 {
			c.buf += string(c.tmp[:n])
			continue
		}
		if err == nil {
			continue
		}
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			c.t.Fatal("connection still open, want server-side close")
		}
		return
	}
}

// settle gives the server time to consume a command that produces no
// reply, so the next write cannot coalesce into the same socket read.
func settle() {
	time.Sleep(100 * time.Millisecond)
}

// register drives the /auth flow for a fresh login.
func register(t *testing.T, c *client, login, password string) {
	t.Helper()

	c.expect("Please, register (/auth) or log in (/login).")
	c.send("/auth")
	c.expect("Input your login: ")
	c.send(login)
	c.expect("Input your password: ")
	c.send(password)
	c.expect("Login and password was set.")
	c.expect("You are in general chat.")
}

// login drives the /login flow for an existing account.
func login(t *testing.T, c *client, loginName, password string) {
	t.Helper()

	c.expect("Please, register (/auth) or log in (/login).")
	c.send("/login")
	c.expect("Input your login: ")
	c.send(loginName)
	c.expect("Input your password: ")
	c.send(password)
	c.expect("Login successful.")
	c.expect("You are in general chat.")
}

// ---- Handshake ----

func TestHandshakeRepeatsOnUnknownInput(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t, nil)
	c := dial(t, addr)

	c.expect("Please, register (/auth) or log in (/login).")
	c.send("/send too early")
	c.expect("Command unknown, please repeat.")
	c.expect("Please, register (/auth) or log in (/login).")

	c.send("/auth")
	c.expect("Input your login: ")
	c.send("alice")
	c.expect("Input your password: ")
	c.send("pw")
	c.expect("Login and password was set.")
	c.expect("You are in general chat.")
}

func TestRegisterTakenLogin(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t, nil)

	a := dial(t, addr)
	register(t, a, "alice", "pw")

	b := dial(t, addr)
	b.expect("Please, register (/auth) or log in (/login).")
	b.send("/auth")
	b.expect("Input your login: ")
	b.send("alice")
	b.expect("The login is taken. Input another login.")
	b.expect("Input your login: ")
	b.send("bob")
	b.expect("Input your password: ")
	b.send("pw")
	b.expect("Login and password was set.")
	b.expect("You are in general chat.")
}

func TestLoginFailures(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t, nil)

	a := dial(t, addr)
	register(t, a, "alice", "secret")

	// Unknown login: report and close.
	c1 := dial(t, addr)
	c1.expect("Please, register (/auth) or log in (/login).")
	c1.send("/login")
	c1.expect("Input your login: ")
	c1.send("ghost")
	c1.expect("Input your password: ")
	c1.send("x")
	c1.expect("User not found.")
	c1.expectClosed()

	// Wrong password: report and close.
	c2 := dial(t, addr)
	c2.expect("Please, register (/auth) or log in (/login).")
	c2.send("/login")
	c2.expect("Input your login: ")
	c2.send("alice")
	c2.expect("Input your password: ")
	c2.send("wrong")
	c2.expect("Wrong password.")
	c2.expectClosed()
}

func TestConcurrentSessionsSameUser(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t, nil)

	a1 := dial(t, addr)
	register(t, a1, "alice", "pw")

	a2 := dial(t, addr)
	login(t, a2, "alice", "pw")

	// A public message from one session reaches both.
	a1.send("/send from session one")
	a1.expect("alice  says: from session one")
	a2.expect("alice  says: from session one")
}

// ---- General Chat ----

func TestBroadcastReachesEveryone(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t, nil)

	a := dial(t, addr)
	register(t, a, "alice", "pw")
	b := dial(t, addr)
	register(t, b, "bob", "pw")

	a.send("/send hello everyone")

	// Sender and peer both see the rendered public form: author, empty
	// private tag (double space), body.
	a.expect("alice  says: hello everyone")
	b.expect("alice  says: hello everyone")

	// A later joiner gets the message replayed from history.
	c := dial(t, addr)
	register(t, c, "carol", "pw")
	c.expect("alice  says: hello everyone")
}

func TestWrongCommand(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t, nil)

	a := dial(t, addr)
	register(t, a, "alice", "pw")

	a.send("/bogus stuff")
	a.expect("Wrong command.")

	// The session survives and keeps working.
	a.send("/send still here")
	a.expect("alice  says: still here")
}

func TestExitFarewell(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t, nil)

	a := dial(t, addr)
	register(t, a, "alice", "pw")

	a.send("/exit")
	a.expect("You are disconnected from chat. Have a nice day.")
	a.expectClosed()
}

// ---- Rate Limiting ----

func TestRateLimit(t *testing.T) {
	t.Parallel()

	addr, store := startServer(t, func(cfg *config.Config) {
		cfg.Chat.RateCap = 2
	})

	a := dial(t, addr)
	register(t, a, "alice", "pw")
	b := dial(t, addr)
	register(t, b, "bob", "pw")

	a.send("/send first")
	a.expect("alice  says: first")
	b.expect("alice  says: first")

	a.send("/send second")
	a.expect("alice  says: second")
	b.expect("alice  says: second")

	a.send("/send third")
	a.expect("Sorry, but you have reached your limit of 2 per hour. The message not be sent.")
	b.assertSilent("third", 200*time.Millisecond)

	// The refused message was never recorded.
	if got := store.HistoryLen(); got != 2 {
		t.Errorf("HistoryLen() = %d after refused send, want 2", got)
	}
}

// ---- Direct Messages ----

func TestDirectMessage(t *testing.T) {
	t.Parallel()

	addr, store := startServer(t, nil)

	a := dial(t, addr)
	register(t, a, "alice", "pw")
	b := dial(t, addr)
	register(t, b, "bob", "pw")
	c := dial(t, addr)
	register(t, c, "carol", "pw")

	a.send("/private bob the quarterly numbers")
	b.expect("alice in private says: the quarterly numbers")
	c.assertSilent("quarterly", 200*time.Millisecond)

	// Unknown recipient: the message is recorded, then rejected.
	before := store.HistoryLen()
	a.send("/private ghost are you there")
	a.expect("Wrong user login.")
	if got := store.HistoryLen(); got != before+1 {
		t.Errorf("HistoryLen() = %d, want %d (rejected DM still recorded)", got, before+1)
	}

	// Self-addressed messages come back to the sending session.
	a.send("/private alice note to self")
	a.expect("alice in private says: note to self")
}

// ---- Rooms ----

func TestRoomLifecycle(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t, nil)

	a := dial(t, addr)
	register(t, a, "alice", "pw")
	b := dial(t, addr)
	register(t, b, "bob", "pw")
	c := dial(t, addr)
	register(t, c, "carol", "pw")

	a.send("/create devs")
	a.expect("Chat devs created.")
	a.send("/create devs")
	a.expect("Chat devs already exists.")

	// Tokenless join drops into the admin-request dialog; "n" backs out.
	b.send("/join devs")
	b.expect("You need an invite-key to join the chat. Send a request to the admin (y/n)?")
	b.send("maybe")
	b.expect("Send a request to the admin (y/n)?")
	b.send("n")
	settle()

	// "y" notifies the admin.
	b.send("/join devs")
	b.expect("You need an invite-key to join the chat. Send a request to the admin (y/n)?")
	b.send("y")
	b.expect("A request has been sent to the admin.")
	a.expect("User bob wants to join the chat devs.")

	// Only the admin can invite.
	b.send("/invite carol devs")
	b.expect("You are not the admin of chat devs.")

	a.send("/invite bob devs")
	a.expect("An invitation to user bob to chat devs has been sent.")
	key := b.capture("You are invited to the chat devs by an admin alice. Your invite key is ")
	if len(key) != 32 {
		t.Fatalf("invite key = %q, want 32 hex chars", key)
	}

	// Wrong key is rejected; the right key joins.
	c.send("/join devs 0123456789abcdef0123456789abcdef")
	c.expect("The invite-key is invalid.")

	b.send("/join devs " + key)
	b.expect("You are join to chat devs.")
	b.send("/join devs " + key)
	b.expect("You are already member of chat devs.")

	// Room traffic reaches members only.
	a.send("/send_chat devs standup in five")
	a.expect("alice in private says: standup in five")
	b.expect("alice in private says: standup in five")
	c.assertSilent("standup", 200*time.Millisecond)

	// Non-members cannot post.
	c.send("/send_chat devs let me in")
	c.expect("You are not member of chat devs.")

	// Unknown room and empty name.
	a.send("/send_chat nowhere hi")
	a.expect("Chat nowhere not found.")
	a.send("/create")
	a.expect("Chat name can not be empty.")
	a.send("/send_chat devs")
	a.expect("Message text can not be empty.")
	a.send("/invite bob")
	a.expect("Wrong commands parameters.")
	a.send("/invite ghost devs")
	a.expect("User ghost not found.")
	a.send("/invite bob devs")
	a.expect("User bob already added to chat devs.")
}

// ---- Unread and Status ----

func TestUnreadAfterRelogin(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t, nil)

	a := dial(t, addr)
	register(t, a, "alice", "pw")
	b := dial(t, addr)
	register(t, b, "bob", "pw")

	a.send("/exit")
	a.expect("You are disconnected from chat. Have a nice day.")
	a.expectClosed()

	b.send("/send posted while alice was away")
	b.expect("bob  says: posted while alice was away")

	a2 := dial(t, addr)
	login(t, a2, "alice", "pw")
	// The message already shows up in the entry replay...
	a2.expect("bob  says: posted while alice was away")

	// ...and again through /unread, which covers the away window.
	a2.send("/unread")
	a2.expect("bob  says: posted while alice was away")
}

func TestStatus(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t, nil)

	a := dial(t, addr)
	register(t, a, "alice", "pw")
	b := dial(t, addr)
	register(t, b, "bob", "pw")

	a.send("/create devs")
	a.expect("Chat devs created.")
	a.send("/private bob ping")
	b.expect("alice in private says: ping")

	b.send("/status")
	b.expect("Your address is ")
	b.expect("You have 0 private messages.")
	b.expect("You are admin of 0 private chats.")
	b.expect("You are member of 0 private chats.")

	a.send("/status")
	a.expect("Your address is ")
	a.expect("You have 1 private messages.")
	a.expect("You are admin of 1 private chats.")
	a.expect("You are member of 1 private chats.")
}

func TestCommandAliases(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t, nil)

	a := dial(t, addr)
	register(t, a, "alice", "pw")

	a.send("/create_chat ops")
	a.expect("Chat ops created.")
	a.send("/show_unread")
	settle()
	a.send("/send_private alice echo")
	a.expect("alice in private says: echo")
	a.send("/join_chat ops")
	a.expect("You are already member of chat ops.")
}

// ---- Shutdown ----

func TestShutdownClosesClients(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Listen.Addr = "127.0.0.1:0"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := chat.NewStore(logger)
	srv := server.New(cfg, store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()
	<-srv.Ready()

	c := dial(t, srv.Addr().String())
	register(t, c, "alice", "pw")

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("Run() did not return after cancel")
	}

	// The session socket is gone.
	c.expectClosed()

	if got := store.ConnectionCount(); got != 0 {
		t.Errorf("ConnectionCount() = %d after shutdown, want 0", got)
	}
}
