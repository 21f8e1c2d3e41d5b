package mcpquic

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestSendMagicBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := SendMagicBytes(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != MagicBytes {
		t.Fatalf("magic: got %q, want %q", buf.String(), MagicBytes)
	}
}

func TestValidateMagicBytes(t *testing.T) {
	if err := ValidateMagicBytes(bytes.NewReader([]byte(MagicBytes))); err != nil {
		t.Fatal(err)
	}

	err := ValidateMagicBytes(bytes.NewReader([]byte("HTTP")))
	if !errors.Is(err, ErrInvalidMagicBytes) {
		t.Fatalf("expected ErrInvalidMagicBytes, got: %v", err)
	}

	if err := ValidateMagicBytes(bytes.NewReader([]byte("MC"))); err == nil {
		t.Fatal("expected error for short input")
	}
}

func TestQUICConfig(t *testing.T) {
	cfg := QUICConfig()
	if cfg.MaxIdleTimeout != DefaultIdleTimeout {
		t.Fatalf("idle timeout: got %v", cfg.MaxIdleTimeout)
	}
	if cfg.KeepAlivePeriod != DefaultKeepAlive {
		t.Fatalf("keepalive: got %v", cfg.KeepAlivePeriod)
	}
	if cfg.Allow0RTT {
		t.Fatal("0-RTT should be disabled")
	}
}

func TestSelfSignedTLSConfig(t *testing.T) {
	cfg, err := SelfSignedTLSConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("certs: got %d", len(cfg.Certificates))
	}
	if cfg.MinVersion != 0x0304 { // tls.VersionTLS13
		t.Fatalf("min version: got %x", cfg.MinVersion)
	}
	found := false
	for _, p := range cfg.NextProtos {
		if p == ALPNProtocol {
			found = true
		}
	}
	if !found {
		t.Fatalf("ALPN: %q not found in %v", ALPNProtocol, cfg.NextProtos)
	}
}

func TestClientTLSConfig(t *testing.T) {
	if cfg := ClientTLSConfig(true); !cfg.InsecureSkipVerify {
		t.Fatal("expected InsecureSkipVerify=true")
	}
	cfg := ClientTLSConfig(false)
	if cfg.InsecureSkipVerify {
		t.Fatal("expected InsecureSkipVerify=false")
	}
	if cfg.MinVersion != 0x0304 {
		t.Fatalf("min version: got %x", cfg.MinVersion)
	}
}

func TestNewClient_DefaultTLS(t *testing.T) {
	c := NewClient("localhost:8443", nil)
	if c.addr != "localhost:8443" {
		t.Fatalf("addr: got %q", c.addr)
	}
	if c.tlsCfg == nil || c.tlsCfg.InsecureSkipVerify {
		t.Fatal("default TLS should verify the server cert")
	}
}

func TestClient_NotConnected(t *testing.T) {
	c := NewClient("localhost:1234", nil)
	ctx := context.Background()

	if _, err := c.ListTools(ctx); err == nil {
		t.Fatal("expected error when not connected")
	}
	if _, err := c.CallTool(ctx, "test", nil); err == nil {
		t.Fatal("expected error when not connected")
	}
	if err := c.Ping(ctx); err == nil {
		t.Fatal("expected error when not connected")
	}
}
