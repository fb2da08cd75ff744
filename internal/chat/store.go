package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"
)

// -------------------------------------------------------------------------
// Store Errors
// -------------------------------------------------------------------------

// Sentinel errors for Store operations.
var (
	// ErrLoginTaken indicates a registration attempt with a login that
	// already exists in the store.
	ErrLoginTaken = errors.New("login already taken")

	// ErrUserNotFound indicates no user exists with the given login.
	ErrUserNotFound = errors.New("user not found")

	// ErrWrongPassword indicates a login attempt with a non-matching password.
	ErrWrongPassword = errors.New("wrong password")

	// ErrRoomNotFound indicates no room exists with the given name.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomExists indicates a room already exists with the given name.
	ErrRoomExists = errors.New("room already exists")

	// ErrAlreadyMember indicates the user is already a member of the room.
	ErrAlreadyMember = errors.New("already a member of room")

	// ErrInvalidInviteToken indicates a join attempt with a token that does
	// not match the one minted for the (room, login) pair.
	ErrInvalidInviteToken = errors.New("invalid invite token")
)

// -------------------------------------------------------------------------
// Entities
// -------------------------------------------------------------------------

// Conn is the writable half of a client connection registered in the store.
// The session driver registers one per accepted socket; the delivery engine
// writes rendered message lines through it.
type Conn interface {
	// WriteLine writes text followed by a single newline.
	WriteLine(text string) error

	// Close closes the underlying transport.
	Close() error
}

// user is the account record. Owned exclusively by the Store; never exposed
// by reference.
type user struct {
	login      string
	password   string
	addresses  []string
	logoutTime time.Time // zero when the user has never logged out

	// privateChats maps room name to the invite token this user holds.
	privateChats map[string]string

	rate RateCounter
}

// room is a named membership-gated channel. Owned exclusively by the Store.
type room struct {
	name    string
	admin   string // login of the creating user; always a member
	members map[string]struct{}

	// invites maps login to the token minted for this room. A token, once
	// minted, is stable for the process lifetime.
	invites map[string]string
}

// InviteKey is one (room, token) entry a user holds, as reported by Status.
type InviteKey struct {
	Room  string
	Token string
}

// Status is the self-status block for a user, computed atomically.
type Status struct {
	// Address is the session address the status was requested from.
	Address string

	// PrivateMessages is the count of private messages authored by the user.
	PrivateMessages int

	// AdminOf is the number of rooms the user administers.
	AdminOf int

	// MemberOf is the number of rooms the user is a member of.
	MemberOf int

	// InviteKeys lists the invite tokens the user holds, sorted by room name.
	InviteKeys []InviteKey
}

// -------------------------------------------------------------------------
// Store
// -------------------------------------------------------------------------

// Store owns all shared chat state: users, rooms, the append-only message
// history, active connections, rate counters, and invite tokens.
//
// Every operation takes the store lock for the duration of the call; no
// operation performs I/O. Callers read state into local snapshots, do their
// socket I/O without the lock, and re-enter only to mutate. This is what
// makes the registration race, the invite-token race, and the rate-check
// race impossible: each of those decisions is a single locked operation.
type Store struct {
	mu sync.RWMutex

	users       map[string]*user
	rooms       map[string]*room
	history     []Message
	connections map[string]Conn

	now    func() time.Time
	logger *slog.Logger
}

// StoreOption configures optional Store parameters.
type StoreOption func(*Store)

// WithClock overrides the store's wall-clock source. Used by tests to pin
// message timestamps and rate-counter windows.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty Store.
func NewStore(logger *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		users:       make(map[string]*user),
		rooms:       make(map[string]*room),
		connections: make(map[string]Conn),
		now:         time.Now,
		logger:      logger.With(slog.String("component", "chat.store")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the current time from the store's clock source.
func (s *Store) Now() time.Time {
	return s.now()
}

// -------------------------------------------------------------------------
// Connections
// -------------------------------------------------------------------------

// RegisterConnection records a newly accepted connection under its address key.
func (s *Store) RegisterConnection(addr string, c Conn) {
	s.mu.Lock()
	s.connections[addr] = c
	s.mu.Unlock()
}

// RemoveConnection removes the connection for addr and returns it so the
// caller can close the transport. The second return is false when no
// connection is registered under addr.
func (s *Store) RemoveConnection(addr string) (Conn, bool) {
	s.mu.Lock()
	c, ok := s.connections[addr]
	if ok {
		delete(s.connections, addr)
	}
	s.mu.Unlock()
	return c, ok
}

// Connection returns the connection registered under addr.
func (s *Store) Connection(addr string) (Conn, bool) {
	s.mu.RLock()
	c, ok := s.connections[addr]
	s.mu.RUnlock()
	return c, ok
}

// SnapshotConnections returns a copy of the current address-to-connection
// map. The delivery engine iterates the snapshot without holding the store
// lock, so concurrent removals during fan-out are safe.
func (s *Store) SnapshotConnections() map[string]Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[string]Conn, len(s.connections))
	for addr, c := range s.connections {
		snap[addr] = c
	}
	return snap
}

// ConnectionCount returns the number of currently registered connections.
func (s *Store) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// -------------------------------------------------------------------------
// Users
// -------------------------------------------------------------------------

// RegisterUser creates a new user with the given credentials and binds addr
// as its first address. Returns ErrLoginTaken when the login already exists;
// the check and the insert are one atomic step, so two concurrent
// registrations of the same login cannot both succeed.
func (s *Store) RegisterUser(login, password, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[login]; exists {
		return fmt.Errorf("register user %q: %w", login, ErrLoginTaken)
	}

	s.users[login] = &user{
		login:        login,
		password:     password,
		addresses:    []string{addr},
		privateChats: make(map[string]string),
	}

	s.logger.Info("user registered",
		slog.String("login", login),
		slog.String("addr", addr),
	)
	return nil
}

// LoginTaken reports whether a user already exists with the given login.
// Used for the registration prompt loop; RegisterUser re-checks atomically.
func (s *Store) LoginTaken(login string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.users[login]
	return exists
}

// Authenticate verifies the credentials and binds addr to the user.
// Returns ErrUserNotFound or ErrWrongPassword on failure. Passwords are
// compared by exact equality.
func (s *Store) Authenticate(login, password, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[login]
	if !ok {
		return fmt.Errorf("authenticate %q: %w", login, ErrUserNotFound)
	}
	if u.password != password {
		return fmt.Errorf("authenticate %q: %w", login, ErrWrongPassword)
	}

	if !slices.Contains(u.addresses, addr) {
		u.addresses = append(u.addresses, addr)
	}

	s.logger.Info("user logged in",
		slog.String("login", login),
		slog.String("addr", addr),
	)
	return nil
}

// ReleaseAddress unbinds addr from the user and records the logout time.
func (s *Store) ReleaseAddress(login, addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[login]
	if !ok {
		return
	}

	for i, a := range u.addresses {
		if a == addr {
			u.addresses = append(u.addresses[:i], u.addresses[i+1:]...)
			break
		}
	}
	u.logoutTime = s.now()
}

// UserExists reports whether a user with the given login is registered.
func (s *Store) UserExists(login string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[login]
	return ok
}

// Addresses returns a copy of the addresses currently bound to the user.
// The result is empty when the user is offline or unknown.
func (s *Store) Addresses(login string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[login]
	if !ok {
		return nil
	}
	return append([]string(nil), u.addresses...)
}

// UserCount returns the number of registered users.
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// -------------------------------------------------------------------------
// Rate Limiting
// -------------------------------------------------------------------------

// AllowSend applies a public-send attempt for the user against the hourly
// cap. The check and the counter update are one atomic step: two concurrent
// sends cannot both pass a check that only one of them should. A refused
// attempt leaves the counter untouched.
func (s *Store) AllowSend(login string, capacity int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[login]
	if !ok {
		return false
	}

	next, allowed := u.rate.Allow(s.now(), capacity)
	if allowed {
		u.rate = next
	}
	return allowed
}

// -------------------------------------------------------------------------
// History
// -------------------------------------------------------------------------

// RecordMessage appends a message to the global history. History entries
// are never deleted; ordering is insertion order.
func (s *Store) RecordMessage(m Message) {
	s.mu.Lock()
	s.history = append(s.history, m)
	s.mu.Unlock()
}

// HistoryLen returns the number of recorded messages.
func (s *Store) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// PublicTail returns the last n public messages, oldest first. Used for the
// short-history replay when a session enters the general chat.
func (s *Store) PublicTail(n int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var public []Message
	for _, m := range s.history {
		if !m.IsPrivate {
			public = append(public, m)
		}
	}
	if n >= 0 && len(public) > n {
		public = public[len(public)-n:]
	}
	return public
}

// UnreadSince returns the messages posted after the user's last logout:
// all public messages in the window, plus private messages authored by the
// user. Returns nothing when the user has never logged out.
func (s *Store) UnreadSince(login string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[login]
	if !ok || u.logoutTime.IsZero() {
		return nil
	}

	var unread []Message
	for _, m := range s.history {
		if !m.PubDate.After(u.logoutTime) {
			continue
		}
		if m.IsPrivate && m.Author != login {
			continue
		}
		unread = append(unread, m)
	}
	return unread
}

// -------------------------------------------------------------------------
// Rooms
// -------------------------------------------------------------------------

// CreateRoom creates a room with the given admin as its sole member.
// Returns ErrRoomExists when the name is already in use; repeated creation
// attempts never mutate the existing room.
func (s *Store) CreateRoom(name, admin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[name]; exists {
		return fmt.Errorf("create room %q: %w", name, ErrRoomExists)
	}

	s.rooms[name] = &room{
		name:    name,
		admin:   admin,
		members: map[string]struct{}{admin: {}},
		invites: make(map[string]string),
	}

	s.logger.Info("room created",
		slog.String("room", name),
		slog.String("admin", admin),
	)
	return nil
}

// RoomExists reports whether a room with the given name exists.
func (s *Store) RoomExists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[name]
	return ok
}

// IsMember reports whether login is a member of the room. False when the
// room does not exist.
func (s *Store) IsMember(roomName, login string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomName]
	if !ok {
		return false
	}
	_, member := r.members[login]
	return member
}

// IsAdmin reports whether login administers the room.
func (s *Store) IsAdmin(roomName, login string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomName]
	return ok && r.admin == login
}

// RoomAdmin returns the login of the room's admin.
func (s *Store) RoomAdmin(roomName string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomName]
	if !ok {
		return "", fmt.Errorf("room admin of %q: %w", roomName, ErrRoomNotFound)
	}
	return r.admin, nil
}

// MemberAddresses returns every address of every member of the room.
func (s *Store) MemberAddresses(roomName string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomName]
	if !ok {
		return nil
	}

	var addrs []string
	for login := range r.members {
		if u, exists := s.users[login]; exists {
			addrs = append(addrs, u.addresses...)
		}
	}
	return addrs
}

// -------------------------------------------------------------------------
// Invite Tokens
// -------------------------------------------------------------------------

// GrantInvite mints the invite token for (room, login) and stores it in the
// target user's held keys. Minting is idempotent: the first call for a pair
// fixes the token for the process lifetime and later calls return the same
// value. The mint and the lookup are one atomic step, so two concurrent
// invites cannot produce two different tokens for the same pair.
func (s *Store) GrantInvite(roomName, login string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomName]
	if !ok {
		return "", fmt.Errorf("grant invite to %q: %w", roomName, ErrRoomNotFound)
	}
	u, ok := s.users[login]
	if !ok {
		return "", fmt.Errorf("grant invite to %q: %w", login, ErrUserNotFound)
	}

	token := r.mintLocked(login)
	u.privateChats[roomName] = token
	return token, nil
}

// JoinWithToken verifies the supplied token against the one minted for
// (room, login) and adds the user to the room's members on a match. The
// verification is defined as mint-and-compare: a join-with-token on a pair
// that was never invited fixes the token, so any guessed token fails.
func (s *Store) JoinWithToken(roomName, login, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomName]
	if !ok {
		return fmt.Errorf("join room %q: %w", roomName, ErrRoomNotFound)
	}
	if _, member := r.members[login]; member {
		return fmt.Errorf("join room %q: %w", roomName, ErrAlreadyMember)
	}
	if token != r.mintLocked(login) {
		return fmt.Errorf("join room %q: %w", roomName, ErrInvalidInviteToken)
	}

	r.members[login] = struct{}{}

	s.logger.Info("user joined room",
		slog.String("room", roomName),
		slog.String("login", login),
	)
	return nil
}

// mintLocked returns the invite token for login, generating and recording
// a fresh one on first use. Caller must hold the store lock.
func (r *room) mintLocked(login string) string {
	if token, ok := r.invites[login]; ok {
		return token
	}
	token := NewInviteToken()
	r.invites[login] = token
	return token
}

// -------------------------------------------------------------------------
// Status
// -------------------------------------------------------------------------

// UserStatus computes the self-status block for the user at addr.
func (s *Store) UserStatus(login, addr string) (Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[login]
	if !ok {
		return Status{}, fmt.Errorf("status of %q: %w", login, ErrUserNotFound)
	}

	st := Status{Address: addr}

	for _, m := range s.history {
		if m.IsPrivate && m.Author == login {
			st.PrivateMessages++
		}
	}

	for _, r := range s.rooms {
		if r.admin == login {
			st.AdminOf++
		}
		if _, member := r.members[login]; member {
			st.MemberOf++
		}
	}

	for roomName, token := range u.privateChats {
		st.InviteKeys = append(st.InviteKeys, InviteKey{Room: roomName, Token: token})
	}
	sort.Slice(st.InviteKeys, func(i, j int) bool {
		return st.InviteKeys[i].Room < st.InviteKeys[j].Room
	})

	return st, nil
}
