// Package conversation tracks chat sessions: persona selection, group rounds
// and bot-to-bot debate.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"innerchat/personas"
	"innerchat/relay"
)

var (
	ErrUnknownPersona = errors.New("unknown persona")
	ErrModeLocked     = errors.New("mode already chosen, reset first")
	ErrBusy           = errors.New("a message is already being answered")
	ErrNotFound       = errors.New("session not found")
)

type Mode string

const (
	ModeSelect Mode = "select"
	ModeSingle Mode = "single"
	ModeGroup  Mode = "group"
)

// DebatePrompt asks the responder to answer the target persona directly.
const DebatePrompt = "Hãy phản hồi trực tiếp ý kiến của %s ở trên, bằng giọng của bạn."

// Asker answers a conversation as a persona. *relay.Relay implements it.
type Asker interface {
	Ask(ctx context.Context, persona *personas.Persona, messages []relay.Message) (relay.Reply, error)
}

type Message struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	BotToBot bool   `json:"bot_to_bot,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`
}

// State is a point-in-time copy of a session.
type State struct {
	ID           string            `json:"id"`
	Mode         Mode              `json:"mode"`
	Persona      *personas.Persona `json:"persona,omitempty"`
	Messages     []Message         `json:"messages"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
}

type Session struct {
	ID        string
	CreatedAt time.Time

	mgr *Manager

	mu           sync.Mutex
	mode         Mode
	persona      *personas.Persona
	messages     []Message
	lastActivity time.Time
	// generation changes on Reset so late replies from an older round are dropped.
	generation uint64

	sending atomic.Bool
}

func (s *Session) touch() {
	s.lastActivity = s.mgr.now()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p *personas.Persona
	if s.persona != nil {
		cp := *s.persona
		cp.Prompt = ""
		p = &cp
	}
	return State{
		ID:           s.ID,
		Mode:         s.mode,
		Persona:      p,
		Messages:     append([]Message{}, s.messages...),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
	}
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// SelectPersona starts a one-on-one chat.
func (s *Session) SelectPersona(id string) error {
	p, ok := s.mgr.catalog.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPersona, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeSelect {
		return ErrModeLocked
	}
	s.mode = ModeSingle
	s.persona = p
	s.touch()
	return nil
}

// EnterGroup starts a chat with every persona.
func (s *Session) EnterGroup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeSelect {
		return ErrModeLocked
	}
	s.mode = ModeGroup
	s.touch()
	return nil
}

// Reset returns to persona selection and forgets the conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeSelect
	s.persona = nil
	s.messages = nil
	s.generation++
	s.touch()
}

// Send posts a user message and returns the messages it added. Empty input
// and input in select mode are ignored.
func (s *Session) Send(ctx context.Context, input string) ([]Message, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	if !s.sending.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.sending.Store(false)

	s.mu.Lock()
	mode, persona, gen := s.mode, s.persona, s.generation
	if mode == ModeSelect {
		s.mu.Unlock()
		return nil, nil
	}
	userMsg := Message{Role: "user", Content: input}
	s.messages = append(s.messages, userMsg)
	history := append([]Message{}, s.messages...)
	s.touch()
	s.mu.Unlock()

	info := relay.CallInfoFrom(ctx)
	info.SessionID = s.ID
	info.Mode = string(mode)
	ctx = relay.WithCallInfo(ctx, info)

	added := []Message{userMsg}
	var err error
	switch mode {
	case ModeSingle:
		added, err = s.sendSingle(ctx, persona, history, gen, added)
	case ModeGroup:
		added, err = s.sendGroup(ctx, input, gen, added)
	}
	return added, err
}

// appendIfCurrent stores msg unless the session was reset since gen.
func (s *Session) appendIfCurrent(gen uint64, msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	s.messages = append(s.messages, msg)
	s.touch()
	return true
}

func (s *Session) sendSingle(ctx context.Context, persona *personas.Persona, history []Message, gen uint64, added []Message) ([]Message, error) {
	msgs := make([]relay.Message, len(history))
	for i, m := range history {
		msgs[i] = relay.Message{Role: m.Role, Content: m.Content}
	}

	reply, err := s.mgr.asker.Ask(ctx, persona, msgs)
	if err != nil {
		return added, fmt.Errorf("ask %s: %w", persona.ID, err)
	}

	msg := Message{Role: persona.Name, Content: reply.Text}
	if s.appendIfCurrent(gen, msg) {
		added = append(added, msg)
	}
	return added, nil
}

type roundReply struct {
	persona *personas.Persona
	text    string
}

func (s *Session) sendGroup(ctx context.Context, input string, gen uint64, added []Message) ([]Message, error) {
	var round []roundReply

	for _, p := range s.mgr.catalog.List() {
		if ctx.Err() != nil {
			return added, ctx.Err()
		}

		msgs := []relay.Message{{Role: "user", Content: input}}
		for _, r := range round {
			msgs = append(msgs, relay.Message{Role: "assistant", Content: r.persona.Name + ": " + r.text})
		}

		reply, err := s.mgr.asker.Ask(ctx, p, msgs)
		if err != nil {
			return added, fmt.Errorf("ask %s: %w", p.ID, err)
		}

		round = append(round, roundReply{persona: p, text: reply.Text})
		msg := Message{Role: p.Name, Content: reply.Text}
		if !s.appendIfCurrent(gen, msg) {
			return added, nil
		}
		added = append(added, msg)
	}

	if !s.mgr.debate || len(round) < 2 {
		return added, nil
	}

	responder, target := s.mgr.pickDebate(round)
	msgs := []relay.Message{
		{Role: "user", Content: input},
		{Role: "assistant", Content: target.persona.Name + ": " + target.text},
		{Role: "user", Content: fmt.Sprintf(DebatePrompt, target.persona.Name)},
	}
	reply, err := s.mgr.asker.Ask(ctx, responder, msgs)
	if err != nil {
		return added, fmt.Errorf("debate %s: %w", responder.ID, err)
	}

	msg := Message{Role: responder.Name, Content: reply.Text, BotToBot: true, ReplyTo: target.persona.Name}
	if s.appendIfCurrent(gen, msg) {
		added = append(added, msg)
	}
	return added, nil
}
