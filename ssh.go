package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"innerchat/conversation"
	"innerchat/relay"
)

const sshHelp = `Commands:
  /personas     list personas
  /talk <id>    talk to one persona
  /group        talk to every persona at once
  /reset        back to persona selection
  /help         this text
  /quit         leave
Anything else is sent as a message.
`

func StartSSHServer(ctx context.Context, port int) error {
	signer, err := loadHostKey(os.Getenv("SSH_HOST_KEY"))
	if err != nil {
		return err
	}

	config := &ssh.ServerConfig{NoClientAuth: true}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on %d: %w", port, err)
	}
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	log.Printf("[SSH] Listening on :%d", port)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("[SSH] Accept: %v", err)
			continue
		}
		go handleSSHConn(ctx, conn, config)
	}
}

// loadHostKey reads a PEM private key, or generates an ed25519 key when path is empty.
func loadHostKey(path string) (ssh.Signer, error) {
	if path == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate host key: %w", err)
		}
		log.Println("[SSH] SSH_HOST_KEY not set, using an ephemeral ed25519 host key")
		return ssh.NewSignerFromKey(priv)
	}

	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read host key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse host key: %w", err)
	}
	return signer, nil
}

func handleSSHConn(ctx context.Context, conn net.Conn, config *ssh.ServerConfig) {
	defer conn.Close()

	if !rateLimitAllow(conn.RemoteAddr().String()) {
		return
	}

	sshConn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		if debugMode {
			log.Printf("[SSH] Handshake failed: %v", err)
		}
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			log.Printf("[SSH] Could not accept channel: %v", err)
			continue
		}

		go func(in <-chan *ssh.Request) {
			for req := range in {
				switch req.Type {
				case "shell", "pty-req", "window-change":
					req.Reply(true, nil)
				default:
					req.Reply(false, nil)
				}
			}
		}(requests)

		go func() {
			defer channel.Close()
			runSSHChat(ctx, channel, conn.RemoteAddr().String())
		}()
	}
}

// runSSHChat runs one interactive conversation over rw.
func runSSHChat(ctx context.Context, rw io.ReadWriter, remote string) {
	sess := sessionManager.Create()
	defer sessionManager.Delete(sess.ID)

	t := term.NewTerminal(rw, "> ")
	fmt.Fprintf(t, "innerchat - talk to your inner selves\n\n%s\n%s", formatPersonaList(), sshHelp)

	for {
		line, err := t.ReadLine()
		if err != nil {
			return
		}
		if !rateLimitAllow(remote) {
			fmt.Fprintln(t, "Rate limit exceeded, slow down.")
			continue
		}

		reqCtx := relay.WithCallInfo(ctx, relay.CallInfo{RequestID: generateRequestID()})
		out, quit := handleSSHLine(reqCtx, sess, line)
		if out != "" {
			fmt.Fprint(t, out)
		}
		if quit {
			return
		}
	}
}

// handleSSHLine runs one input line and returns what to print.
func handleSSHLine(ctx context.Context, sess *conversation.Session, line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}

	if strings.HasPrefix(line, "/") {
		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit", "/exit":
			return "Tạm biệt.\n", true
		case "/help":
			return sshHelp, false
		case "/personas":
			return formatPersonaList(), false
		case "/talk":
			if len(fields) < 2 {
				return "Usage: /talk <id>\n", false
			}
			if err := sess.SelectPersona(fields[1]); err != nil {
				return sshError(err), false
			}
			p, _ := personaCatalog.Get(fields[1])
			return fmt.Sprintf("Bạn đang trò chuyện với: %s\n", p.Name), false
		case "/group":
			if err := sess.EnterGroup(); err != nil {
				return sshError(err), false
			}
			return "Bạn đang trò chuyện với: Toàn bộ bản ngã\n", false
		case "/reset":
			sess.Reset()
			return "Chọn chế độ trò chuyện: /talk <id> hoặc /group\n", false
		default:
			return fmt.Sprintf("Unknown command %s, try /help\n", fields[0]), false
		}
	}

	if sess.Mode() == conversation.ModeSelect {
		return "Chọn chế độ trò chuyện trước: /talk <id> hoặc /group\n", false
	}

	added, err := sess.Send(ctx, line)
	if err != nil {
		return sshError(err), false
	}

	var b strings.Builder
	for _, m := range added {
		if m.Role == "user" {
			continue
		}
		if m.BotToBot {
			fmt.Fprintf(&b, "↪ %s → %s: %s\n", m.Role, m.ReplyTo, m.Content)
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String(), false
}

func formatPersonaList() string {
	var b strings.Builder
	b.WriteString("Personas:\n")
	for _, p := range personaCatalog.List() {
		fmt.Fprintf(&b, "  %-14s %s\n", p.ID, p.Name)
	}
	return b.String()
}

func sshError(err error) string {
	switch {
	case errors.Is(err, conversation.ErrModeLocked):
		return "Already chatting, use /reset first.\n"
	case errors.Is(err, conversation.ErrUnknownPersona):
		return "No such persona, see /personas.\n"
	case errors.Is(err, conversation.ErrBusy):
		return "Still answering your last message.\n"
	default:
		return fmt.Sprintf("Error: %v\n", err)
	}
}
