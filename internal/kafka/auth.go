package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
)

// SecurityProtocol selects how broker connections are established and
// authenticated.
type SecurityProtocol string

const (
	ProtocolPlaintext     SecurityProtocol = "plaintext"
	ProtocolSSL           SecurityProtocol = "ssl"
	ProtocolSASLPlaintext SecurityProtocol = "sasl_plaintext"
	ProtocolSASLSSL       SecurityProtocol = "sasl_ssl"
)

// ParseSecurityProtocol parses a case-insensitive protocol name.
func ParseSecurityProtocol(input string) (SecurityProtocol, error) {
	switch SecurityProtocol(strings.ToLower(strings.TrimSpace(input))) {
	case "", ProtocolPlaintext:
		return ProtocolPlaintext, nil
	case ProtocolSSL:
		return ProtocolSSL, nil
	case ProtocolSASLPlaintext:
		return ProtocolSASLPlaintext, nil
	case ProtocolSASLSSL:
		return ProtocolSASLSSL, nil
	default:
		return "", fmt.Errorf("%w: unknown security protocol %q", ErrConfig, input)
	}
}

// TLSPaths points at PEM material on disk. Files are read by the engines at
// construction time, not here.
type TLSPaths struct {
	CAFile   string
	CertFile string
	KeyFile  string
}

// AuthConfig describes how to reach and authenticate against a cluster.
type AuthConfig struct {
	Brokers  []string
	Protocol SecurityProtocol // empty means plaintext
	TLS      *TLSPaths
}

// ClientParams is the engine-neutral connection parameter set produced by
// BuildClientParams. Both engines consume it when building their clients.
type ClientParams struct {
	Brokers []string
	UseTLS  bool
	TLS     TLSPaths
}

// BuildClientParams maps an AuthConfig onto concrete connection parameters.
// It is a pure mapping: no connection is attempted and no files are read.
//
// The SASL protocols are rejected outright rather than falling back to
// plaintext; a silent downgrade would be a security regression.
func BuildClientParams(auth AuthConfig) (ClientParams, error) {
	brokers := make([]string, 0, len(auth.Brokers))
	for _, broker := range auth.Brokers {
		broker = strings.TrimSpace(broker)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	if len(brokers) == 0 {
		return ClientParams{}, fmt.Errorf("%w: at least one broker is required", ErrConfig)
	}

	switch auth.Protocol {
	case "", ProtocolPlaintext:
		return ClientParams{Brokers: brokers}, nil
	case ProtocolSSL:
		if auth.TLS == nil || auth.TLS.CAFile == "" || auth.TLS.CertFile == "" || auth.TLS.KeyFile == "" {
			return ClientParams{}, fmt.Errorf("%w: security protocol ssl requires ca, cert and key files", ErrConfig)
		}
		return ClientParams{Brokers: brokers, UseTLS: true, TLS: *auth.TLS}, nil
	case ProtocolSASLPlaintext, ProtocolSASLSSL:
		return ClientParams{}, fmt.Errorf("%w: security protocol %s is not implemented", ErrConfig, auth.Protocol)
	default:
		return ClientParams{}, fmt.Errorf("%w: unknown security protocol %q", ErrConfig, auth.Protocol)
	}
}

// newTLSConfig loads the PEM material named by paths. All three files are
// required by the time this runs; BuildClientParams enforces that.
func newTLSConfig(paths TLSPaths) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	cert, err := tls.LoadX509KeyPair(paths.CertFile, paths.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}
	tlsConfig.Certificates = []tls.Certificate{cert}

	caCert, err := os.ReadFile(paths.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("parse CA certificate %q", paths.CAFile)
	}
	tlsConfig.RootCAs = caCertPool

	return tlsConfig, nil
}
