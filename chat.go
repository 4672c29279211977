package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"innerchat/conversation"
	"innerchat/personas"
	"innerchat/relay"
)

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Stdout.WriteString(err.Error() + "\n")
			return
		}
		log.Fatalf("[Main] %v", err)
	}
	if opts.Debug {
		debugMode = true
	}

	loadPortConfig(opts)

	catalog, err := loadPersonas(opts.Personas)
	if err != nil {
		log.Fatalf("[Main] %v", err)
	}
	personaCatalog = catalog
	log.Printf("[Main] Loaded %d personas: %v", catalog.Len(), catalog.Names())

	configDir := opts.ConfigDir
	if configDir == "" {
		configDir = envString("LLM_CONFIG_DIR", "./config")
	}
	InitializeModelRouter(configDir)

	if err := InitAudit(); err != nil {
		log.Printf("[AUDIT] Disabled, could not open store: %v", err)
	}

	completer := newRouterCompleter(modelRouter)
	personaRelay = newServiceRelay(completer, "HTTP")
	dnsRelay = newServiceRelay(completer, "DNS")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionManager = conversation.NewManager(catalog, personaRelay, conversation.Options{
		TTL:    envDuration("SESSION_TTL", 30*time.Minute),
		Debate: envBool("DEBATE_ENABLED", true),
	})
	sessionManager.StartSweeper(ctx, time.Minute)

	limiter = newIPLimiter(envFloat("RATE_LIMIT_RPS", 5), envInt("RATE_LIMIT_BURST", 20), 10*time.Minute)
	limiter.startEviction(time.Minute, ctx.Done())

	handler := newHTTPHandler()
	errc := make(chan error, 4)
	serve := func(name string, fn func() error) {
		go func() {
			if err := fn(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
				log.Printf("[Main] %s server stopped: %v", name, err)
			}
		}()
	}

	if SSH_PORT > 0 {
		serve("SSH", func() error { return StartSSHServer(ctx, SSH_PORT) })
	}
	if DNS_PORT > 0 {
		serve("DNS", func() error { return StartDNSServer(ctx, DNS_PORT) })
	}
	if HTTPS_PORT > 0 {
		if certPath, keyPath, found := findSSLCertificates(); found {
			serve("HTTPS", func() error { return StartHTTPSServer(ctx, HTTPS_PORT, certPath, keyPath, handler) })
		} else {
			log.Printf("[Main] WARNING: SSL certificates not found, HTTPS disabled")
			log.Printf("[Main] Expected cert.pem and key.pem in working directory or Let's Encrypt certificates")
		}
	}
	if HTTP_PORT > 0 {
		serve("HTTP", func() error { return StartHTTPServer(ctx, HTTP_PORT, handler) })
	}

	select {
	case <-ctx.Done():
		log.Println("[Main] Shutting down")
	case err := <-errc:
		log.Printf("[Main] Exiting after listener failure: %v", err)
		stop()
	}

	if healthChecker != nil {
		healthChecker.Stop()
	}
	if auditStore != nil {
		if err := auditStore.Close(); err != nil {
			log.Printf("[AUDIT] Close: %v", err)
		}
	}
	// Give listeners a moment to finish their graceful shutdown.
	time.Sleep(500 * time.Millisecond)
}

// loadPersonas reads the catalog from flag, PERSONAS_FILE or config/personas.yaml,
// and falls back to the built-in set.
func loadPersonas(flagPath string) (*personas.Catalog, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv("PERSONAS_FILE")
	}
	if path != "" {
		return personas.Load(path)
	}
	if fileExists("config/personas.yaml") {
		return personas.Load("config/personas.yaml")
	}
	return personas.Default(), nil
}

func newServiceRelay(completer relay.Completer, service string) *relay.Relay {
	sc := getServiceConfig(service)
	return relay.New(completer, relay.Options{
		Model:       sc.Model,
		Temperature: sc.Temperature,
		MaxTokens:   sc.MaxTokens,
		Observer:    observeCall,
	})
}
