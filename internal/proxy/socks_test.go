package proxy

import (
	"testing"
	"time"
)

func TestNewSocksClient(t *testing.T) {
	c, err := NewSocksClient("127.0.0.1:1080")
	if err != nil {
		t.Fatalf("NewSocksClient: %v", err)
	}
	if c.Transport == nil {
		t.Error("client has no transport")
	}
	if c.Timeout != 30*time.Second {
		t.Errorf("timeout = %v", c.Timeout)
	}
}
