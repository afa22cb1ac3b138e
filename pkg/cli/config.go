package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

const (
	// DefaultBaseDir is the base configuration directory name
	DefaultBaseDir = ".smartnpc"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.yaml"
)

// Config represents the main configuration structure for a CLI app
type Config struct {
	// AppName is the application name (e.g., "smartnpc")
	AppName string `yaml:"-"`

	// CurrentContext is the name of the currently active context
	CurrentContext string `yaml:"current_context,omitempty"`

	// Contexts is a map of context name to context configuration
	Contexts map[string]*Context `yaml:"contexts,omitempty"`

	// configPath is the path to the config file
	configPath string
}

// Context holds the credentials and defaults for one SmartNPC project.
type Context struct {
	// Name is the context name
	Name string `yaml:"name"`

	// KeyID and PublicKey authenticate against the service.
	KeyID     string `yaml:"key_id"`
	PublicKey string `yaml:"public_key"`

	// Host is the service URL (optional, uses smartnpc.DefaultHost if empty)
	Host string `yaml:"host,omitempty"`

	// Player is announced after authentication (optional)
	Player *smartnpc.PlayerInfo `yaml:"player,omitempty"`

	// Voice requests spoken replies by default
	Voice bool `yaml:"voice,omitempty"`

	// Behaviors requests actions, gestures and expressions by default
	Behaviors bool `yaml:"behaviors,omitempty"`

	// Language is the default speech recognition language
	Language smartnpc.Language `yaml:"language,omitempty"`

	// Timeout is the request timeout in seconds (optional)
	Timeout int `yaml:"timeout,omitempty"`
}

// LoadConfig loads or creates configuration for the specified app
func LoadConfig(appName string) (*Config, error) {
	return LoadConfigWithPath(appName, "")
}

// LoadConfigWithPath loads configuration from a custom path
func LoadConfigWithPath(appName, customPath string) (*Config, error) {
	var configPath string

	if customPath != "" {
		configPath = customPath
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, DefaultBaseDir, appName, DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := &Config{
		AppName:    appName,
		Contexts:   make(map[string]*Context),
		configPath: configPath,
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Save()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	cfg.AppName = appName
	cfg.configPath = configPath

	return cfg, nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(c.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Path returns the config file path
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the config directory path
func (c *Config) Dir() string {
	return filepath.Dir(c.configPath)
}

// AddContext adds or replaces a context. The first context added becomes
// the current one.
func (c *Config) AddContext(name string, ctx *Context) error {
	ctx.Name = name
	if err := ctx.Validate(); err != nil {
		return err
	}
	c.Contexts[name] = ctx
	if c.CurrentContext == "" {
		c.CurrentContext = name
	}
	return c.Save()
}

// DeleteContext removes a context
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext sets the current context
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns a specific context
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return ctx, nil
}

// GetCurrentContext returns the current context
func (c *Config) GetCurrentContext() (*Context, error) {
	if c.CurrentContext == "" {
		return nil, fmt.Errorf("no current context set")
	}
	return c.GetContext(c.CurrentContext)
}

// ResolveContext returns the context by name, or current context if name is empty
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name == "" {
		return c.GetCurrentContext()
	}
	return c.GetContext(name)
}

// ListContexts returns all context names, sorted
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Validate reports missing credentials.
func (ctx *Context) Validate() error {
	if ctx.KeyID == "" || ctx.PublicKey == "" {
		return fmt.Errorf("context %q: %w", ctx.Name, smartnpc.ErrMissingCredentials)
	}
	if ctx.Language != "" && !slices.Contains(smartnpc.Languages, ctx.Language) {
		return fmt.Errorf("context %q: unknown language %q", ctx.Name, ctx.Language)
	}
	if ctx.Timeout < 0 {
		return fmt.Errorf("context %q: timeout must not be negative", ctx.Name)
	}
	return nil
}

// ConnectionConfig returns the smartnpc.Config for this context.
func (ctx *Context) ConnectionConfig() smartnpc.Config {
	cfg := smartnpc.Config{
		KeyID:          ctx.KeyID,
		PublicKey:      ctx.PublicKey,
		Host:           ctx.Host,
		RequestTimeout: time.Duration(ctx.Timeout) * time.Second,
	}
	if ctx.Player != nil {
		cfg.Player = *ctx.Player
	}
	return cfg
}

// Masked returns a copy of the context safe to print.
func (ctx *Context) Masked() *Context {
	c := *ctx
	c.PublicKey = MaskAPIKey(c.PublicKey)
	return &c
}

// MaskAPIKey masks the API key for display
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
