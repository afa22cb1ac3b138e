package cli

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"1234", "****"},
		{"12345678", "********"},
		{"123456789", "1234*6789"},
		{"pk-1234567890abcdef", "pk-1***********cdef"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := MaskAPIKey(tt.key); got != tt.want {
				t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadConfigWithPath("testapp", filepath.Join(t.TempDir(), "testapp", "config.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigWithPath error: %v", err)
	}
	return cfg
}

func TestLoadConfigWithPath_NewConfig(t *testing.T) {
	cfg := newTestConfig(t)

	if cfg.AppName != "testapp" {
		t.Errorf("AppName = %q, want %q", cfg.AppName, "testapp")
	}
	if cfg.Contexts == nil {
		t.Error("Contexts should be initialized")
	}
	if _, err := os.Stat(cfg.Path()); err != nil {
		t.Errorf("config file should be created: %v", err)
	}
}

func TestConfig_RoundTrip(t *testing.T) {
	cfg := newTestConfig(t)

	ctx := &Context{
		KeyID:     "key-1",
		PublicKey: "pk-abcdef123456",
		Host:      "ws://localhost:8080",
		Player:    &smartnpc.PlayerInfo{ID: "p1", Name: "Ada"},
		Voice:     true,
		Language:  smartnpc.LanguageEnglish,
		Timeout:   30,
	}
	if err := cfg.AddContext("dev", ctx); err != nil {
		t.Fatalf("AddContext: %v", err)
	}
	if cfg.CurrentContext != "dev" {
		t.Errorf("first context should become current, got %q", cfg.CurrentContext)
	}

	loaded, err := LoadConfigWithPath("testapp", cfg.Path())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, err := loaded.GetCurrentContext()
	if err != nil {
		t.Fatalf("GetCurrentContext: %v", err)
	}
	if got.Name != "dev" || got.KeyID != "key-1" || got.Host != "ws://localhost:8080" {
		t.Errorf("reloaded context = %+v", got)
	}
	if got.Player == nil || got.Player.Name != "Ada" || !got.Voice || got.Timeout != 30 {
		t.Errorf("reloaded context = %+v", got)
	}
}

func TestConfig_Contexts(t *testing.T) {
	cfg := newTestConfig(t)

	for _, name := range []string{"b", "a"} {
		if err := cfg.AddContext(name, &Context{KeyID: "k", PublicKey: "p"}); err != nil {
			t.Fatal(err)
		}
	}
	if names := cfg.ListContexts(); !slices.Equal(names, []string{"a", "b"}) {
		t.Errorf("ListContexts = %v", names)
	}

	if err := cfg.UseContext("a"); err != nil {
		t.Fatal(err)
	}
	if ctx, err := cfg.ResolveContext(""); err != nil || ctx.Name != "a" {
		t.Errorf("ResolveContext(\"\") = %v, %v", ctx, err)
	}
	if ctx, err := cfg.ResolveContext("b"); err != nil || ctx.Name != "b" {
		t.Errorf("ResolveContext(b) = %v, %v", ctx, err)
	}
	if err := cfg.UseContext("missing"); err == nil {
		t.Error("UseContext(missing) should fail")
	}

	if err := cfg.DeleteContext("a"); err != nil {
		t.Fatal(err)
	}
	if cfg.CurrentContext != "" {
		t.Errorf("deleting the current context should unset it, got %q", cfg.CurrentContext)
	}
	if _, err := cfg.GetCurrentContext(); err == nil {
		t.Error("GetCurrentContext with none set should fail")
	}
	if err := cfg.DeleteContext("a"); err == nil {
		t.Error("deleting twice should fail")
	}
}

func TestContext_Validate(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		ok   bool
	}{
		{"valid", Context{KeyID: "k", PublicKey: "p"}, true},
		{"missing key", Context{PublicKey: "p"}, false},
		{"missing public key", Context{KeyID: "k"}, false},
		{"known language", Context{KeyID: "k", PublicKey: "p", Language: smartnpc.LanguageJapanese}, true},
		{"unknown language", Context{KeyID: "k", PublicKey: "p", Language: "xx"}, false},
		{"negative timeout", Context{KeyID: "k", PublicKey: "p", Timeout: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ctx.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v", err)
			}
		})
	}

	err := (&Context{}).Validate()
	if !errors.Is(err, smartnpc.ErrMissingCredentials) {
		t.Errorf("missing credentials err = %v", err)
	}
}

func TestContext_ConnectionConfig(t *testing.T) {
	ctx := &Context{
		KeyID:     "k",
		PublicKey: "p",
		Host:      "ws://h",
		Player:    &smartnpc.PlayerInfo{ID: "p1"},
		Timeout:   5,
	}
	cfg := ctx.ConnectionConfig()
	if cfg.KeyID != "k" || cfg.PublicKey != "p" || cfg.Host != "ws://h" {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Player.ID != "p1" || cfg.RequestTimeout != 5*time.Second {
		t.Errorf("config = %+v", cfg)
	}

	masked := ctx.Masked()
	if masked.PublicKey != "*" || ctx.PublicKey != "p" {
		t.Errorf("Masked changed the original or did not mask: %q / %q", masked.PublicKey, ctx.PublicKey)
	}
}
