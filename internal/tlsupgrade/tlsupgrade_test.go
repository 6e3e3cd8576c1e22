package tlsupgrade

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"
)

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "pgmock-test"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestUpgradeDisabledWritesUnsupported(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		_, _, err := Upgrade(nil, server, 0, &Config{})
		done <- err
	}()

	buf := make([]byte, 1)
	if _, err := client.Read(buf); err != nil {
		t.Fatal(err)
	}

	if buf[0] != 'N' {
		t.Fatalf("expected 'N', got %q", buf[0])
	}

	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestUpgradeEnabledWritesSupportedAndUpgrades(t *testing.T) {
	cert := selfSignedCert(t)
	cfg := &Config{TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}}}

	if !cfg.Enabled() {
		t.Fatal("expected config to be enabled")
	}

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		_, _, err := Upgrade(nil, server, 0, cfg)
		done <- err
	}()

	buf := make([]byte, 1)
	if _, err := client.Read(buf); err != nil {
		t.Fatal(err)
	}

	if buf[0] != 'S' {
		t.Fatalf("expected 'S', got %q", buf[0])
	}

	clientTLS := tls.Client(client, &tls.Config{InsecureSkipVerify: true})
	go clientTLS.Handshake()

	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestConfigEnabledNilSafe(t *testing.T) {
	var cfg *Config
	if cfg.Enabled() {
		t.Fatal("nil config must not report enabled")
	}
}
