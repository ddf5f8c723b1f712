// Package certs supplies the server's TLS certificates: Let's Encrypt via
// autocert, a configured key pair, or a self-signed fallback for development.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

type Config struct {
	AutoCert bool
	Domain   string
	CertFile string
	KeyFile  string
	CacheDir string
	Email    string
	// AllowSelfSigned permits the generated fallback certificate.
	AllowSelfSigned bool
}

type Manager struct {
	cfg      Config
	autoCert *autocert.Manager
	logger   *zap.Logger

	pairOnce sync.Once
	pair     *tls.Certificate
	pairErr  error

	selfOnce sync.Once
	self     *tls.Certificate
	selfErr  error
}

func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	m := &Manager{cfg: cfg, logger: logger}

	if cfg.AutoCert {
		if cfg.Domain == "" {
			return nil, errors.New("autocert requires a domain")
		}
		if err := os.MkdirAll(cfg.CacheDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create certificate cache: %w", err)
		}
		m.autoCert = &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.Domain),
			Cache:      autocert.DirCache(cfg.CacheDir),
			Email:      cfg.Email,
		}
		logger.Info("AutoCert configured",
			zap.String("domain", cfg.Domain),
			zap.String("cache_dir", cfg.CacheDir))
	}

	return m, nil
}

// GetCertificate tries autocert, then the configured key pair, then the
// self-signed certificate if allowed.
func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	var errs []error

	if m.autoCert != nil {
		cert, err := m.autoCert.GetCertificate(hello)
		if err == nil {
			return cert, nil
		}
		errs = append(errs, fmt.Errorf("autocert: %w", err))
	}

	if m.cfg.CertFile != "" && m.cfg.KeyFile != "" {
		m.pairOnce.Do(func() {
			cert, err := tls.LoadX509KeyPair(m.cfg.CertFile, m.cfg.KeyFile)
			if err != nil {
				m.pairErr = fmt.Errorf("key pair: %w", err)
				return
			}
			m.pair = &cert
		})
		if m.pairErr == nil {
			return m.pair, nil
		}
		errs = append(errs, m.pairErr)
	}

	if m.cfg.AllowSelfSigned {
		m.selfOnce.Do(func() {
			m.self, m.selfErr = selfSigned(m.hosts(), time.Now())
			if m.selfErr == nil {
				m.logger.Warn("Serving a self-signed certificate", zap.Strings("hosts", m.hosts()))
			}
		})
		if m.selfErr == nil {
			return m.self, nil
		}
		errs = append(errs, m.selfErr)
	}

	if len(errs) == 0 {
		return nil, errors.New("no certificate source configured")
	}
	return nil, errors.Join(errs...)
}

func (m *Manager) TLSConfig() *tls.Config {
	cfg := &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
	if m.autoCert != nil {
		cfg.NextProtos = append(cfg.NextProtos, "acme-tls/1")
	}
	return cfg
}

// ChallengeHandler serves ACME HTTP-01 challenges and redirects everything
// else to HTTPS. Nil without autocert.
func (m *Manager) ChallengeHandler() http.Handler {
	if m.autoCert == nil {
		return nil
	}
	return m.autoCert.HTTPHandler(nil)
}

func (m *Manager) hosts() []string {
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	if m.cfg.Domain != "" {
		hosts = append([]string{m.cfg.Domain}, hosts...)
	}
	return hosts
}

func selfSigned(hosts []string, now time.Time) (*tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial: %w", err)
	}

	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"Asalet Restaurant Development"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, nil
}
