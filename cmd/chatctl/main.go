// Chatctl -- terminal client for the chatd server.
package main

import "github.com/chatsrv/chatd/cmd/chatctl/commands"

func main() {
	commands.Execute()
}
