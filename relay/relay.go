// Package relay forwards a persona conversation to the completion backend.
package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"innerchat/personas"
	"innerchat/providers"
)

// Fallback is returned to the user whenever no usable reply came back.
const Fallback = "Không có phản hồi."

var (
	ErrNilPersona  = errors.New("persona is required")
	ErrUnnamed     = errors.New("persona name is required")
	ErrEmptyAnswer = errors.New("empty completion content")
)

// Completer sends one chat-completion request.
type Completer interface {
	Complete(ctx context.Context, req *providers.UnifiedRequest) (*Completion, error)
}

type Completion struct {
	Content    string
	Model      string
	Deployment string
	Provider   string
	Usage      providers.Usage
}

// Message is one line of a conversation as the caller sees it. Role is "user",
// "assistant" or a persona name.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Reply struct {
	Text       string
	Fallback   bool
	Err        error
	Model      string
	Deployment string
	Provider   string
	Latency    time.Duration
}

// Call describes one finished Ask for observers.
type Call struct {
	Info     CallInfo
	Persona  *personas.Persona
	Request  *providers.UnifiedRequest
	Reply    Reply
	Started  time.Time
	Finished time.Time
}

// CallInfo carries request-scoped labels through the context.
type CallInfo struct {
	RequestID string
	SessionID string
	Mode      string
}

type callInfoKey struct{}

func WithCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, info)
}

func CallInfoFrom(ctx context.Context) CallInfo {
	info, _ := ctx.Value(callInfoKey{}).(CallInfo)
	return info
}

type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// Observer, if set, is called after every Ask.
	Observer func(ctx context.Context, call Call)
}

type Relay struct {
	completer Completer
	opts      Options
}

func New(completer Completer, opts Options) *Relay {
	if opts.Model == "" {
		opts.Model = "gpt-4o"
	}
	return &Relay{completer: completer, opts: opts}
}

// Ask forwards messages to the backend under the persona's system prompt.
// Backend failures never surface as errors; they produce the Fallback reply.
func (r *Relay) Ask(ctx context.Context, persona *personas.Persona, messages []Message) (Reply, error) {
	if persona == nil {
		return Reply{}, ErrNilPersona
	}
	if strings.TrimSpace(persona.Name) == "" {
		return Reply{}, ErrUnnamed
	}

	req := &providers.UnifiedRequest{
		Model:       r.opts.Model,
		Messages:    BuildMessages(persona, messages),
		Temperature: r.opts.Temperature,
		MaxTokens:   r.opts.MaxTokens,
	}

	started := time.Now()
	completion, err := r.completer.Complete(ctx, req)
	reply := Reply{Latency: time.Since(started)}
	if completion != nil {
		reply.Model = completion.Model
		reply.Deployment = completion.Deployment
		reply.Provider = completion.Provider
	}

	switch {
	case err != nil:
		reply.Text, reply.Fallback, reply.Err = Fallback, true, err
	case completion == nil || strings.TrimSpace(completion.Content) == "":
		reply.Text, reply.Fallback, reply.Err = Fallback, true, ErrEmptyAnswer
	default:
		reply.Text = completion.Content
	}

	if r.opts.Observer != nil {
		r.opts.Observer(ctx, Call{
			Info:     CallInfoFrom(ctx),
			Persona:  persona,
			Request:  req,
			Reply:    reply,
			Started:  started,
			Finished: time.Now(),
		})
	}
	return reply, nil
}

// BuildMessages puts the persona prompt first as the only system message.
// Persona-labelled roles become "assistant"; blank and system messages are dropped.
func BuildMessages(persona *personas.Persona, messages []Message) []providers.Message {
	out := make([]providers.Message, 0, len(messages)+1)
	out = append(out, providers.Message{Role: "system", Content: persona.SystemPrompt()})

	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case "system":
			continue
		case "user":
			out = append(out, providers.Message{Role: "user", Content: m.Content})
		default:
			out = append(out, providers.Message{Role: "assistant", Content: m.Content})
		}
	}
	return out
}
