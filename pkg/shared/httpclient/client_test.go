package httpclient

import (
	"net/http"
	"testing"
	"time"
)

func TestDefaultClientConfig(t *testing.T) {
	config := DefaultClientConfig()

	if config.Timeout != 30*time.Second {
		t.Errorf("Expected timeout 30s, got %v", config.Timeout)
	}
	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries 3, got %d", config.MaxRetries)
	}
	if config.DisableSSLVerification {
		t.Error("Expected DisableSSLVerification to be false")
	}
	if config.MaxIdleConns != 10 {
		t.Errorf("Expected MaxIdleConns 10, got %d", config.MaxIdleConns)
	}
}

func TestNewClient(t *testing.T) {
	config := ClientConfig{
		Timeout:                30 * time.Second,
		MaxRetries:             2,
		DisableSSLVerification: false,
		MaxIdleConns:           5,
		IdleConnTimeout:        60 * time.Second,
		TLSHandshakeTimeout:    5 * time.Second,
		ResponseHeaderTimeout:  5 * time.Second,
	}

	client := NewClient(config)

	if client == nil {
		t.Fatal("Expected client to be created")
	}
	if client.Timeout != config.Timeout {
		t.Errorf("Expected timeout %v, got %v", config.Timeout, client.Timeout)
	}
	if client.Transport == nil {
		t.Error("Expected transport to be configured")
	}
}

func TestNewClientWithTimeout(t *testing.T) {
	timeout := 15 * time.Second
	client := NewClientWithTimeout(timeout)

	if client == nil {
		t.Fatal("Expected client to be created")
	}
	if client.Timeout != timeout {
		t.Errorf("Expected timeout %v, got %v", timeout, client.Timeout)
	}
}

func TestNewClientDisableSSLVerification(t *testing.T) {
	config := DefaultClientConfig()
	config.DisableSSLVerification = true
	client := NewClient(config)

	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatal("Expected *http.Transport")
	}
	if transport.TLSClientConfig == nil || !transport.TLSClientConfig.InsecureSkipVerify {
		t.Error("Expected InsecureSkipVerify to be true")
	}
}
