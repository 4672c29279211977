package main

import (
	"net"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDNSQuestion(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		question string
		persona  string
		ok       bool
	}{
		{"dashes become spaces", "how-are-you.calm-self.persona.local.", "how are you", "calm-self", true},
		{"multiple labels", "why.so-serious.inner-critic.persona.local.", "why so serious", "inner-critic", true},
		{"case folded", "Hello.Future-Self.PERSONA.local.", "hello", "future-self", true},
		{"not fqdn", "hi.calm-self.persona.local", "hi", "calm-self", true},
		{"no question", "calm-self.persona.local.", "", "", false},
		{"only dashes", "---.calm-self.persona.local.", "", "", false},
		{"other zone", "hi.calm-self.example.com.", "", "", false},
		{"zone apex", "persona.local.", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, p, ok := parseDNSQuestion(tt.query, "persona.local.")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.question, q)
			assert.Equal(t, tt.persona, p)
		})
	}
}

func TestTruncateAnswer(t *testing.T) {
	short := "ngắn thôi"
	assert.Equal(t, short, truncateAnswer(short))

	long := strings.Repeat("ả", 600)
	out := truncateAnswer(long)
	assert.Equal(t, dnsAnswerLimit, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "..."))

	exact := strings.Repeat("a", dnsAnswerLimit)
	assert.Equal(t, exact, truncateAnswer(exact))
}

func TestChunkTXT(t *testing.T) {
	assert.Equal(t, []string{""}, chunkTXT(""))
	assert.Equal(t, []string{"abc"}, chunkTXT("abc"))

	ascii := strings.Repeat("x", 600)
	chunks := chunkTXT(ascii)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 255)
	assert.Equal(t, ascii, strings.Join(chunks, ""))

	// Three-byte runes never straddle a chunk boundary.
	vi := strings.Repeat("ờ", 200)
	chunks = chunkTXT(vi)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 255)
		assert.True(t, utf8.ValidString(c))
	}
	assert.Equal(t, vi, strings.Join(chunks, ""))
}

// dnsRecorder captures the reply; methods other than these are never called.
type dnsRecorder struct {
	dns.ResponseWriter
	msg *dns.Msg
}

func (r *dnsRecorder) RemoteAddr() net.Addr {
	return &net.UDPAddr{IP: net.ParseIP("192.0.2.10"), Port: 5353}
}

func (r *dnsRecorder) WriteMsg(m *dns.Msg) error {
	r.msg = m
	return nil
}

func askDNS(t *testing.T, name string) *dns.Msg {
	t.Helper()
	req := new(dns.Msg)
	req.SetQuestion(name, dns.TypeTXT)
	rec := &dnsRecorder{}
	handleDNS(rec, req)
	require.NotNil(t, rec.msg)
	return rec.msg
}

func TestHandleDNS_Answers(t *testing.T) {
	stub := &stubCompleter{content: strings.Repeat("bình yên ", 80)}
	setupGlobals(t, stub)
	dnsZone = "persona.local."

	msg := askDNS(t, "feeling-lost.calm-self.persona.local.")
	assert.Equal(t, dns.RcodeSuccess, msg.Rcode)
	require.Len(t, msg.Answer, 1)

	txt, ok := msg.Answer[0].(*dns.TXT)
	require.True(t, ok)
	answer := strings.Join(txt.Txt, "")
	assert.Equal(t, dnsAnswerLimit, utf8.RuneCountInString(answer))

	req := stub.last()
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "feeling lost", req.Messages[1].Content)
	assert.Equal(t, 200, req.MaxTokens)
}

func TestHandleDNS_NXDomain(t *testing.T) {
	stub := &stubCompleter{content: "ok"}
	setupGlobals(t, stub)
	dnsZone = "persona.local."

	assert.Equal(t, dns.RcodeNameError, askDNS(t, "hi.nobody.persona.local.").Rcode)
	assert.Equal(t, dns.RcodeNameError, askDNS(t, "calm-self.persona.local.").Rcode)
	assert.Zero(t, stub.count())
}

func TestHandleDNS_FallbackOnFailure(t *testing.T) {
	setupGlobals(t, &stubCompleter{err: assert.AnError})
	dnsZone = "persona.local."

	msg := askDNS(t, "hi.inner-child.persona.local.")
	require.Len(t, msg.Answer, 1)
	assert.Equal(t, []string{"Không có phản hồi."}, msg.Answer[0].(*dns.TXT).Txt)
}
