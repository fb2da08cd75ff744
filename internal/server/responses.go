package server

// Command vocabulary. The *Alias forms are accepted for backward
// compatibility with older client builds.
const (
	cmdAuth  = "/auth"
	cmdLogin = "/login"
	cmdExit  = "/exit"

	cmdUnread      = "/unread"
	cmdUnreadAlias = "/show_unread"

	cmdStatus = "/status"
	cmdSend   = "/send"

	cmdPrivate      = "/private"
	cmdPrivateAlias = "/send_private"

	cmdCreate      = "/create"
	cmdCreateAlias = "/create_chat"

	cmdSendChat = "/send_chat"

	cmdInvite      = "/invite"
	cmdInviteAlias = "/invite_chat"

	cmdJoin      = "/join"
	cmdJoinAlias = "/join_chat"
)

// Server-emitted strings. The literal values are part of the wire contract:
// clients match on them. The two Input prompts are written without a
// trailing newline.
const (
	msgAuthOrLogin      = "Please, register (/auth) or log in (/login)."
	msgInputLogin       = "Input your login: "
	msgInputPassword    = "Input your password: "
	msgLoginTaken       = "The login is taken. Input another login."
	msgLoginSet         = "Login and password was set."
	msgLoginSuccessful  = "Login successful."
	msgUserNotFound     = "User not found."
	msgWrongPassword    = "Wrong password."
	msgUnknownRepeat    = "Command unknown, please repeat."
	msgGeneralChat      = "You are in general chat."
	msgDisconnected     = "You are disconnected from chat. Have a nice day."
	msgWrongCommand     = "Wrong command."
	msgWrongUserLogin   = "Wrong user login."
	msgWrongParams      = "Wrong commands parameters."
	msgEmptyChatName    = "Chat name can not be empty."
	msgEmptyMessageText = "Message text can not be empty."
	msgNeedInviteKey    = "You need an invite-key to join the chat. Send a request to the admin (y/n)?"
	msgAskAdminPrompt   = "Send a request to the admin (y/n)?"
	msgRequestSent      = "A request has been sent to the admin."
	msgInvalidInviteKey = "The invite-key is invalid."
)

// Parameterized responses.
const (
	fmtRateLimited   = "Sorry, but you have reached your limit of %d per hour. The message not be sent."
	fmtChatExists    = "Chat %s already exists."
	fmtChatCreated   = "Chat %s created."
	fmtChatNotFound  = "Chat %s not found."
	fmtNotMember     = "You are not member of chat %s."
	fmtNotAdmin      = "You are not the admin of chat %s."
	fmtUserNotFound  = "User %s not found."
	fmtAlreadyAdded  = "User %s already added to chat %s."
	fmtInviteSent    = "An invitation to user %s to chat %s has been sent."
	fmtInviteNotice  = "You are invited to the chat %s by an admin %s. Your invite key is %s"
	fmtJoinRequest   = "User %s wants to join the chat %s."
	fmtAlreadyMember = "You are already member of chat %s."
	fmtJoined        = "You are join to chat %s."
	fmtYourAddress   = "Your address is %s."
	fmtPrivateCount  = "You have %d private messages."
	fmtAdminOf       = "You are admin of %d private chats."
	fmtMemberOf      = "You are member of %d private chats."
	fmtInviteKeyLine = "The invite key for the chat %s is %s."
)
