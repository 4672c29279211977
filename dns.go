package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/miekg/dns"

	"innerchat/relay"
)

const (
	dnsAnswerLimit = 500
	dnsDeadline    = 4 * time.Second
)

var (
	dnsZone = "persona.local."
	// dnsRelay answers DNS questions with tighter token limits than HTTP.
	dnsRelay *relay.Relay
)

func StartDNSServer(ctx context.Context, port int) error {
	dnsZone = dns.Fqdn(envString("DNS_ZONE", dnsZone))

	mux := dns.NewServeMux()
	mux.HandleFunc(dnsZone, handleDNS)

	server := &dns.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Net:     "udp",
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.Printf("[DNS] Listening on :%d for zone %s", port, dnsZone)
	return server.ListenAndServe()
}

// parseDNSQuestion splits "<words-with-dashes>.<persona-id>.<zone>".
func parseDNSQuestion(name, zone string) (question, personaID string, ok bool) {
	name = strings.ToLower(dns.Fqdn(name))
	zone = strings.ToLower(dns.Fqdn(zone))
	if !strings.HasSuffix(name, "."+zone) {
		return "", "", false
	}

	labels := dns.SplitDomainName(strings.TrimSuffix(name, "."+zone))
	if len(labels) < 2 {
		return "", "", false
	}
	personaID = labels[len(labels)-1]
	question = strings.Join(labels[:len(labels)-1], " ")
	question = strings.TrimSpace(strings.ReplaceAll(question, "-", " "))
	if question == "" {
		return "", "", false
	}
	return question, personaID, true
}

// truncateAnswer cuts s to dnsAnswerLimit characters.
func truncateAnswer(s string) string {
	if utf8.RuneCountInString(s) <= dnsAnswerLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:dnsAnswerLimit-3]) + "..."
}

// chunkTXT splits s into TXT character-strings of at most 255 bytes,
// keeping runes whole.
func chunkTXT(s string) []string {
	var out []string
	for len(s) > 255 {
		cut := 255
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" || len(out) == 0 {
		out = append(out, s)
	}
	return out
}

func handleDNS(w dns.ResponseWriter, r *dns.Msg) {
	if !rateLimitAllow(w.RemoteAddr().String()) {
		return
	}
	if len(r.Question) == 0 {
		return
	}

	m := new(dns.Msg)
	m.SetReply(r)
	m.Authoritative = true

	for _, q := range r.Question {
		if q.Qtype != dns.TypeTXT {
			continue
		}

		question, personaID, ok := parseDNSQuestion(q.Name, dnsZone)
		if !ok {
			m.Rcode = dns.RcodeNameError
			continue
		}
		persona, ok := personaCatalog.Get(personaID)
		if !ok {
			m.Rcode = dns.RcodeNameError
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), dnsDeadline)
		ctx = relay.WithCallInfo(ctx, relay.CallInfo{RequestID: generateRequestID(), Mode: "dns"})
		reply, err := dnsRelay.Ask(ctx, persona, []relay.Message{{Role: "user", Content: question}})
		cancel()

		answer := relay.Fallback
		if err == nil {
			answer = reply.Text
		}
		if debugMode {
			log.Printf("[DNS] %s asked %q (fallback=%v)", persona.ID, question, reply.Fallback)
		}

		m.Answer = append(m.Answer, &dns.TXT{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeTXT,
				Class:  dns.ClassINET,
				Ttl:    60,
			},
			Txt: chunkTXT(truncateAnswer(answer)),
		})
	}

	if err := w.WriteMsg(m); err != nil {
		log.Printf("[DNS] Failed to write reply: %v", err)
	}
}
