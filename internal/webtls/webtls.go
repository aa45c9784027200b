// Package webtls provides auto-generated self-signed TLS certificates
// so the dashboard can be served over HTTPS on a LAN without touching
// a CA. Browsers will warn once; for a single-operator tool that is an
// acceptable trade.
package webtls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	certName = "linkboard.crt"
	keyName  = "linkboard.key"
)

// GenerateOrLoad returns a TLS config backed by a self-signed
// certificate stored under certDir, regenerating it when missing or
// within a day of expiry. The certificate covers localhost, the given
// hostnames, and all non-loopback local IPs.
func GenerateOrLoad(certDir string, hostnames []string, logger *slog.Logger) (*tls.Config, error) {
	certFile := filepath.Join(certDir, certName)
	keyFile := filepath.Join(certDir, keyName)

	if cfg, ok := loadExisting(certFile, keyFile, logger); ok {
		return cfg, nil
	}

	if err := os.MkdirAll(certDir, 0o700); err != nil {
		return nil, fmt.Errorf("create cert dir: %w", err)
	}
	if err := generate(certFile, keyFile, hostnames, logger); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load generated cert: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

func loadExisting(certFile, keyFile string, logger *slog.Logger) (*tls.Config, bool) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, false
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil || time.Now().After(leaf.NotAfter.Add(-24*time.Hour)) {
		logger.Info("existing certificate expired or invalid, regenerating")
		return nil, false
	}
	logger.Info("loaded existing TLS certificate", "expires", leaf.NotAfter)
	return &tls.Config{Certificates: []tls.Certificate{cert}}, true
}

func generate(certFile, keyFile string, hostnames []string, logger *slog.Logger) error {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Linkboard (self-signed)"},
			CommonName:   "Linkboard Local",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(2 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              append([]string{"localhost"}, hostnames...),
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}
	addrs, _ := net.InterfaceAddrs()
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			template.IPAddresses = append(template.IPAddresses, ipNet.IP)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}

	certOut, err := os.Create(certFile)
	if err != nil {
		return fmt.Errorf("write cert: %w", err)
	}
	pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	certOut.Close()

	keyOut, err := os.OpenFile(keyFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	keyBytes, _ := x509.MarshalECPrivateKey(privateKey)
	pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})
	keyOut.Close()

	logger.Info("generated new self-signed TLS certificate",
		"cert", certFile,
		"hostnames", template.DNSNames,
		"expires", template.NotAfter,
	)
	return nil
}
