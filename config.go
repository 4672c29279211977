package main

import (
	"log"
	"os"
	"path/filepath"
)

// Port configuration based on environment
var (
	HTTP_PORT  int
	HTTPS_PORT int
	SSH_PORT   int
	DNS_PORT   int
)

var highPortMode bool

// loadPortConfig sets the listener ports from HIGH_PORT_MODE, the *_PORT
// variables and finally the command line.
func loadPortConfig(opts *Options) {
	highPortMode = envBool("HIGH_PORT_MODE", false) || opts.HighPort
	if highPortMode {
		log.Println("[Config] Running in HIGH_PORT_MODE - using non-privileged ports")
		HTTP_PORT = 8080  // Instead of 80
		HTTPS_PORT = 8443 // Instead of 443
		SSH_PORT = 2222   // Instead of 22
		DNS_PORT = 8053   // Instead of 53
	} else {
		HTTP_PORT = 80
		HTTPS_PORT = 443
		SSH_PORT = 22
		DNS_PORT = 53
	}

	HTTP_PORT = envInt("HTTP_PORT", HTTP_PORT)
	HTTPS_PORT = envInt("HTTPS_PORT", HTTPS_PORT)
	SSH_PORT = envInt("SSH_PORT", SSH_PORT)
	DNS_PORT = envInt("DNS_PORT", DNS_PORT)

	HTTP_PORT = overridePort(HTTP_PORT, opts.HTTPPort)
	HTTPS_PORT = overridePort(HTTPS_PORT, opts.HTTPSPort)
	SSH_PORT = overridePort(SSH_PORT, opts.SSHPort)
	DNS_PORT = overridePort(DNS_PORT, opts.DNSPort)

	log.Printf("[Config] Port configuration: HTTP=%d, HTTPS=%d, SSH=%d, DNS=%d",
		HTTP_PORT, HTTPS_PORT, SSH_PORT, DNS_PORT)
}

func overridePort(current, flag int) int {
	switch {
	case flag < 0:
		return 0
	case flag > 0:
		return flag
	default:
		return current
	}
}

// findSSLCertificates looks for SSL certificates in common locations
func findSSLCertificates() (certPath, keyPath string, found bool) {
	if fileExists("cert.pem") && fileExists("key.pem") {
		return "cert.pem", "key.pem", true
	}

	domain := os.Getenv("BASE_DOMAIN")
	if domain == "" {
		domain = "innerchat.local"
	}

	letsEncryptPaths := []string{
		filepath.Join("/etc/letsencrypt/live", domain),
		filepath.Join("/etc/letsencrypt/live", "chat."+domain),
	}

	for _, basePath := range letsEncryptPaths {
		certFile := filepath.Join(basePath, "fullchain.pem")
		keyFile := filepath.Join(basePath, "privkey.pem")

		if fileExists(certFile) && fileExists(keyFile) {
			log.Printf("[Config] Found Let's Encrypt certificates at %s", basePath)
			return certFile, keyFile, true
		}
	}

	alternativePaths := []struct {
		cert string
		key  string
	}{
		{"/etc/ssl/certs/cert.pem", "/etc/ssl/private/key.pem"},
		{"/etc/ssl/cert.pem", "/etc/ssl/key.pem"},
	}

	for _, paths := range alternativePaths {
		if fileExists(paths.cert) && fileExists(paths.key) {
			log.Printf("[Config] Found certificates at %s", filepath.Dir(paths.cert))
			return paths.cert, paths.key, true
		}
	}

	return "", "", false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
