// Package chat implements the shared in-memory chat state: users, rooms,
// message history, active connections, per-user rate counters, and invite
// tokens. All mutation goes through the Store, which serializes access.
package chat
