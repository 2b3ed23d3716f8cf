package security

import (
	"testing"
	"time"
)

func TestExchangeGuard_ValidateURL(t *testing.T) {
	g := NewExchangeGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"httpsの公開ホストは許可", "https://chat.example.com", false},
		{"httpの公開ホストは許可", "http://chat.example.com/api", false},
		{"空URLは拒否", "", true},
		{"不正なスキームは拒否", "ftp://example.com", true},
		{"file スキームは拒否", "file:///etc/passwd", true},
		{"ホストなしは拒否", "https://", true},
		{"localhostは拒否", "https://localhost/api", true},
		{"ループバックIPは拒否", "http://127.0.0.1:8080", true},
		{"プライベートIP 10系は拒否", "http://10.0.0.5", true},
		{"プライベートIP 192.168系は拒否", "http://192.168.1.1", true},
		{"メタデータIPは拒否", "http://169.254.169.254/latest/meta-data", true},
		{"IPv6ループバックは拒否", "http://[::1]/", true},
		{"公開IPは許可", "http://93.184.216.34", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.ValidateURL(tt.url)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateURL(%q) = nil, want error", tt.url)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateURL(%q) = %v, want nil", tt.url, err)
			}
		})
	}
}

func TestExchangeGuard_NewSafeClient_ReturnsClient(t *testing.T) {
	g := NewExchangeGuard()

	client := g.NewSafeClient(10 * time.Second)
	if client == nil {
		t.Fatal("expected non-nil http client")
	}
}
