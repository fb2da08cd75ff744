package chat

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewInviteToken generates a fresh opaque invite token: 128 random bits,
// hex-encoded. Tokens are minted once per (room, login) pair and are stable
// for the lifetime of the process; see Store.GrantInvite.
func NewInviteToken() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}
