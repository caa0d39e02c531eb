package session

import (
	"path/filepath"
	"testing"

	"github.com/matheus3301/offsync/internal/config"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "local", false},
		{"valid uuid", "3f2a9c1e-7b4d-4e8a-9f10-2c6d8e0b1a55", false},
		{"valid mixed case", "AnaSilva", false},
		{"valid underscore", "user_42", false},
		{"valid single char", "a", false},
		{"valid max length", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"empty", "", true},
		{"space", "ana silva", true},
		{"dot", "ana.silva", true},
		{"dotdot", "..", true},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
		{"at sign", "ana@example", true},
		{"slash", "ana/silva", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	base := t.TempDir()
	t.Setenv(HomeEnv, base)

	if got := Resolve(""); got != DefaultUser {
		t.Errorf("Resolve() without config = %q, want %q", got, DefaultUser)
	}

	if err := config.Save(filepath.Join(base, "config.toml"), &config.Config{DefaultUser: "ana"}); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "ana" {
		t.Errorf("Resolve() = %q, want ana from config", got)
	}
	if got := Resolve("bob"); got != "bob" {
		t.Errorf("Resolve(bob) = %q, want flag to win", got)
	}
}
