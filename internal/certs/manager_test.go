package certs

import (
	"crypto/tls"
	"testing"

	"go.uber.org/zap"
)

func TestSelfSignedFallback(t *testing.T) {
	m, err := NewManager(Config{Domain: "api.example.com", AllowSelfSigned: true}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	cert, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	if err != nil {
		t.Fatalf("expected a self-signed certificate: %v", err)
	}
	if err := cert.Leaf.VerifyHostname("api.example.com"); err != nil {
		t.Fatalf("domain missing from certificate: %v", err)
	}
	if err := cert.Leaf.VerifyHostname("127.0.0.1"); err != nil {
		t.Fatalf("loopback missing from certificate: %v", err)
	}

	again, _ := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	if again != cert {
		t.Fatal("self-signed certificate should be generated once")
	}
}

func TestNoSourceConfigured(t *testing.T) {
	m, err := NewManager(Config{}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetCertificate(&tls.ClientHelloInfo{}); err == nil {
		t.Fatal("expected an error without any certificate source")
	}
	if m.ChallengeHandler() != nil {
		t.Fatal("challenge handler requires autocert")
	}
}

func TestMissingKeyPairFallsBack(t *testing.T) {
	m, err := NewManager(Config{
		CertFile:        "/nonexistent/cert.pem",
		KeyFile:         "/nonexistent/key.pem",
		AllowSelfSigned: true,
	}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetCertificate(&tls.ClientHelloInfo{}); err != nil {
		t.Fatalf("expected self-signed fallback: %v", err)
	}
}

func TestAutoCertRequiresDomain(t *testing.T) {
	if _, err := NewManager(Config{AutoCert: true, CacheDir: t.TempDir()}, zap.NewNop()); err == nil {
		t.Fatal("expected an error without a domain")
	}
}

func TestAutoCertChallengeHandler(t *testing.T) {
	m, err := NewManager(Config{AutoCert: true, Domain: "api.example.com", CacheDir: t.TempDir()}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if m.ChallengeHandler() == nil {
		t.Fatal("expected a challenge handler")
	}
	protos := m.TLSConfig().NextProtos
	if protos[len(protos)-1] != "acme-tls/1" {
		t.Fatalf("unexpected protocols %v", protos)
	}
}
