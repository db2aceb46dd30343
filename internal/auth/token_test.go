package auth

import (
	"strings"
	"testing"
)

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid", token: "0123456789abcdef"},
		{name: "too short", token: "short", wantErr: true},
		{name: "too long", token: strings.Repeat("a", 73), wantErr: true},
		{name: "whitespace", token: "0123456789 abcdef", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateToken(tt.token)
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestHashAndVerifyToken(t *testing.T) {
	hash, err := HashToken("token-0123456789")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	if !VerifyToken(hash, "token-0123456789") {
		t.Fatal("expected token verification success")
	}
	if VerifyToken(hash, "token-wrong-value") {
		t.Fatal("expected token verification failure")
	}
	if VerifyToken("", "token-0123456789") {
		t.Fatal("expected empty hash to fail")
	}
}

func TestGenerateToken(t *testing.T) {
	first, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct tokens")
	}
	if err := ValidateToken(first); err != nil {
		t.Fatalf("generated token invalid: %v", err)
	}
}
