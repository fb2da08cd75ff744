package server

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/chatsrv/chatd/internal/chat"
)

// action is the dispatcher's verdict on whether the command loop continues.
type action int

const (
	actionContinue action = iota
	actionExit
)

// dispatch routes one command line to its handler. The line is split on the
// first whitespace run into the command head and the argument tail; each
// handler splits its own tail further. Unknown heads get a fixed error
// reply and the loop continues.
func (s *session) dispatch(line string) action {
	head, tail := splitFirst(line)

	switch head {
	case cmdExit:
		s.srv.metrics.CommandDispatched(cmdExit)
		return actionExit
	case cmdUnread, cmdUnreadAlias:
		s.srv.metrics.CommandDispatched(cmdUnread)
		s.handleUnread()
	case cmdStatus:
		s.srv.metrics.CommandDispatched(cmdStatus)
		s.handleStatus()
	case cmdSend:
		s.srv.metrics.CommandDispatched(cmdSend)
		s.handleSend(tail)
	case cmdPrivate, cmdPrivateAlias:
		s.srv.metrics.CommandDispatched(cmdPrivate)
		s.handleDirect(tail)
	case cmdCreate, cmdCreateAlias:
		s.srv.metrics.CommandDispatched(cmdCreate)
		s.handleCreate(tail)
	case cmdSendChat:
		s.srv.metrics.CommandDispatched(cmdSendChat)
		s.handleRoomSend(tail)
	case cmdInvite, cmdInviteAlias:
		s.srv.metrics.CommandDispatched(cmdInvite)
		s.handleInvite(tail)
	case cmdJoin, cmdJoinAlias:
		s.srv.metrics.CommandDispatched(cmdJoin)
		return s.handleJoin(tail)
	default:
		s.srv.metrics.CommandDispatched("unknown")
		s.reply(msgWrongCommand)
	}
	return actionContinue
}

// handleSend posts a public message to the general chat. The rate check and
// counter update are one atomic store operation; a refused send delivers
// the refusal to every session of the sending user and records nothing.
func (s *session) handleSend(text string) {
	store := s.srv.store

	if !store.AllowSend(s.login, s.srv.cfg.RateCap) {
		s.srv.metrics.SendRateLimited()
		refusal := fmt.Sprintf(fmtRateLimited, s.srv.cfg.RateCap)
		s.srv.deliverToAddrs(refusal, store.Addresses(s.login))
		return
	}

	m := chat.NewPublicMessage(text, s.login, store.Now())
	store.RecordMessage(m)
	s.srv.metrics.MessageRecorded(kindPublic)
	s.srv.broadcast(m.Text)
}

// handleDirect posts a one-to-one private message. The message is recorded
// in history before the recipient is validated; a message to an unknown
// login therefore still exists in history but is delivered to nobody.
func (s *session) handleDirect(tail string) {
	target, body := splitFirst(tail)
	store := s.srv.store

	m := chat.NewDirectMessage(body, s.login, target, store.Now())
	store.RecordMessage(m)
	s.srv.metrics.MessageRecorded(kindDirect)

	switch {
	case !store.UserExists(target):
		s.reply(msgWrongUserLogin)
	case target == s.login:
		s.srv.deliverToAddrs(m.Text, []string{s.addr})
	default:
		s.srv.deliverToAddrs(m.Text, store.Addresses(target))
	}
}

// handleCreate creates a room with the caller as admin and sole member.
// The whole tail is the room name, so names may contain spaces.
func (s *session) handleCreate(name string) {
	if name == "" {
		s.reply(msgEmptyChatName)
		return
	}

	err := s.srv.store.CreateRoom(name, s.login)
	if errors.Is(err, chat.ErrRoomExists) {
		s.reply(fmt.Sprintf(fmtChatExists, name))
		return
	}
	if err != nil {
		s.logger.Error("room creation failed", slog.String("error", err.Error()))
		return
	}

	s.srv.metrics.RoomCreated()
	s.reply(fmt.Sprintf(fmtChatCreated, name))
}

// handleRoomSend posts a private message to a room. Checks run in a fixed
// order: room existence, non-empty body, then membership.
func (s *session) handleRoomSend(tail string) {
	roomName, body := splitFirst(tail)
	store := s.srv.store

	if !store.RoomExists(roomName) {
		s.reply(fmt.Sprintf(fmtChatNotFound, roomName))
		return
	}
	if body == "" {
		s.reply(msgEmptyMessageText)
		return
	}
	if !store.IsMember(roomName, s.login) {
		s.reply(fmt.Sprintf(fmtNotMember, roomName))
		return
	}

	m := chat.NewRoomMessage(body, s.login, roomName, store.Now())
	store.RecordMessage(m)
	s.srv.metrics.MessageRecorded(kindRoom)
	s.srv.deliverToAddrs(m.Text, store.MemberAddresses(roomName))
}

// handleInvite mints (or re-reads) the invite token for a target user and
// a room the caller administers, then notifies both sides. Repeating an
// invite re-sends the same token.
func (s *session) handleInvite(tail string) {
	target, roomName := splitFirst(tail)
	store := s.srv.store

	if target == "" || roomName == "" {
		s.reply(msgWrongParams)
		return
	}
	if !store.RoomExists(roomName) {
		s.reply(fmt.Sprintf(fmtChatNotFound, roomName))
		return
	}
	if !store.IsAdmin(roomName, s.login) {
		s.reply(fmt.Sprintf(fmtNotAdmin, roomName))
		return
	}
	if !store.UserExists(target) {
		s.reply(fmt.Sprintf(fmtUserNotFound, target))
		return
	}
	if store.IsMember(roomName, target) {
		s.reply(fmt.Sprintf(fmtAlreadyAdded, target, roomName))
		return
	}

	token, err := store.GrantInvite(roomName, target)
	if err != nil {
		s.logger.Error("invite failed", slog.String("error", err.Error()))
		return
	}

	s.reply(fmt.Sprintf(fmtInviteSent, target, roomName))
	s.srv.deliverToAddrs(
		fmt.Sprintf(fmtInviteNotice, roomName, s.login, token),
		store.Addresses(target),
	)
}

// handleJoin adds the caller to a room. With a token the join is immediate
// on a match; without one the session drops into the ask-the-admin
// sub-dialog, which can only end the session on connection loss.
func (s *session) handleJoin(tail string) action {
	roomName, token := splitFirst(tail)
	store := s.srv.store

	if roomName == "" {
		s.reply(msgEmptyChatName)
		return actionContinue
	}
	if !store.RoomExists(roomName) {
		s.reply(fmt.Sprintf(fmtChatNotFound, roomName))
		return actionContinue
	}
	if store.IsMember(roomName, s.login) {
		s.reply(fmt.Sprintf(fmtAlreadyMember, roomName))
		return actionContinue
	}

	if token == "" {
		return s.askAdmin(roomName)
	}

	err := store.JoinWithToken(roomName, s.login, token)
	switch {
	case err == nil:
		s.reply(fmt.Sprintf(fmtJoined, roomName))
	case errors.Is(err, chat.ErrInvalidInviteToken):
		s.reply(msgInvalidInviteKey)
	case errors.Is(err, chat.ErrAlreadyMember):
		s.reply(fmt.Sprintf(fmtAlreadyMember, roomName))
	default:
		s.logger.Error("join failed", slog.String("error", err.Error()))
	}
	return actionContinue
}

// askAdmin runs the y/n sub-dialog for a tokenless join. "y" notifies the
// room admin's live sessions; "n" returns to the command loop; anything
// else repeats the question.
func (s *session) askAdmin(roomName string) action {
	if err := s.conn.write(msgNeedInviteKey, true); err != nil {
		return actionExit
	}

	for {
		answer, err := s.conn.readCommand()
		if err != nil {
			return actionExit
		}

		switch answer {
		case "y":
			s.reply(msgRequestSent)
			admin, aerr := s.srv.store.RoomAdmin(roomName)
			if aerr != nil {
				s.logger.Error("join request failed", slog.String("error", aerr.Error()))
				return actionContinue
			}
			s.srv.deliverToAddrs(
				fmt.Sprintf(fmtJoinRequest, s.login, roomName),
				s.srv.store.Addresses(admin),
			)
			return actionContinue
		case "n":
			return actionContinue
		default:
			if werr := s.conn.write(msgAskAdminPrompt, true); werr != nil {
				return actionExit
			}
		}
	}
}

// handleUnread replays the messages posted since the caller's last logout.
func (s *session) handleUnread() {
	for _, m := range s.srv.store.UnreadSince(s.login) {
		if err := s.conn.write(m.Text, true); err != nil {
			return
		}
	}
}

// handleStatus reports the caller's self-status block.
func (s *session) handleStatus() {
	st, err := s.srv.store.UserStatus(s.login, s.addr)
	if err != nil {
		s.logger.Error("status failed", slog.String("error", err.Error()))
		return
	}

	s.reply(fmt.Sprintf(fmtYourAddress, st.Address))
	s.reply(fmt.Sprintf(fmtPrivateCount, st.PrivateMessages))
	s.reply(fmt.Sprintf(fmtAdminOf, st.AdminOf))
	s.reply(fmt.Sprintf(fmtMemberOf, st.MemberOf))
	for _, key := range st.InviteKeys {
		s.reply(fmt.Sprintf(fmtInviteKeyLine, key.Room, key.Token))
	}
}
