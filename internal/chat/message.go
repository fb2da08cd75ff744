package chat

import (
	"fmt"
	"time"
)

// timeLayout is the wall-clock format embedded in every rendered message.
const timeLayout = "2006.01.02 15:04:05"

// privateTag is inserted between the author and "says:" for private
// messages. Public messages use the empty tag, which leaves a double
// space in the rendered text; clients match on that form.
const privateTag = "in private"

// Message is a single chat message. The rendered Text is fixed at
// construction time; messages are immutable once recorded in history.
type Message struct {
	// Author is the login of the sending user.
	Author string

	// PubDate is the wall-clock timestamp at creation.
	PubDate time.Time

	// IsPrivate marks direct messages and room messages.
	IsPrivate bool

	// Recipient is the target login for direct messages, empty otherwise.
	Recipient string

	// Room is the room name for room messages, empty otherwise.
	Room string

	// Text is the rendered wire form:
	// "YYYY.MM.DD HH:MM:SS <author> [in private ]says: <text>".
	Text string
}

// NewPublicMessage constructs a general-chat message.
func NewPublicMessage(body, author string, at time.Time) Message {
	return newMessage(body, author, false, "", "", at)
}

// NewDirectMessage constructs a one-to-one private message.
func NewDirectMessage(body, author, recipient string, at time.Time) Message {
	return newMessage(body, author, true, recipient, "", at)
}

// NewRoomMessage constructs a private message addressed to a room.
func NewRoomMessage(body, author, room string, at time.Time) Message {
	return newMessage(body, author, true, "", room, at)
}

func newMessage(body, author string, private bool, recipient, room string, at time.Time) Message {
	m := Message{
		Author:    author,
		PubDate:   at,
		IsPrivate: private,
		Recipient: recipient,
		Room:      room,
	}
	m.Text = m.render(body)
	return m
}

// render produces the wire form of the message. The tag slot is always
// present, so public messages carry two consecutive spaces.
func (m Message) render(body string) string {
	tag := ""
	if m.IsPrivate {
		tag = privateTag
	}
	return fmt.Sprintf("%s %s %s says: %s", m.PubDate.Format(timeLayout), m.Author, tag, body)
}
