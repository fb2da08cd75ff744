package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/spf13/cobra"
)

// dialTimeout bounds the initial TCP connect to the server.
const dialTimeout = 5 * time.Second

// commandHelp lists the chat protocol commands, printed before connecting.
const commandHelp = `Commands description:
/exit - disconnect from server
/unread - show all unread message in general chat
/status - show user status
/send <message> - send the message to a user
/private <user_login> <message> - send the private message to a user
/create <chat name> - create a private chat
/send_chat <chat name> <message> - send the message to a private chat
/invite <user login> <chat name> - invite a user to a private chat
/join <chat name> <invite-key or empty> - join to the private chat, or send request for the invite-key`

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect to the server and bridge the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConnect(cmd.Context(), serverAddr, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// runConnect dials the server and bridges the terminal to the connection:
// every input line becomes one protocol command, every received chunk is
// printed as-is. Returns when the server closes the connection or the
// context is canceled.
func runConnect(ctx context.Context, addr string, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, commandHelp)
	fmt.Fprintln(out)

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	// Server -> terminal. Copy runs until the server closes the socket.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.Copy(out, conn)
	}()

	// Terminal -> server. Each line is sent as one write; the protocol
	// treats one read as one command, so no newline is appended.
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			if _, werr := conn.Write(scanner.Bytes()); werr != nil {
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}

	fmt.Fprintln(out, "Disconnected.")
	return nil
}
