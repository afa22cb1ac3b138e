package cli

import (
	"os"
	"path/filepath"
)

// Paths provides access to the ~/.smartnpc/<app> directory structure
type Paths struct {
	// AppName is the application name
	AppName string

	// HomeDir is the user's home directory
	HomeDir string
}

// NewPaths creates a new Paths instance for the given app
func NewPaths(appName string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{
		AppName: appName,
		HomeDir: home,
	}, nil
}

// BaseDir returns the base directory (~/.smartnpc)
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// AppDir returns the app-specific directory (~/.smartnpc/<app>)
func (p *Paths) AppDir() string {
	return filepath.Join(p.BaseDir(), p.AppName)
}

// ConfigFile returns the config file path (~/.smartnpc/<app>/config.yaml)
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.AppDir(), DefaultConfigFile)
}

// HistoryDir returns the message history cache of a context
// (~/.smartnpc/<app>/history/<context>). Contexts hold different projects,
// so their characters must not share a cache.
func (p *Paths) HistoryDir(context string) string {
	return filepath.Join(p.AppDir(), "history", context)
}

// VoiceDir returns where recorded replies are written
// (~/.smartnpc/<app>/voice)
func (p *Paths) VoiceDir() string {
	return filepath.Join(p.AppDir(), "voice")
}

// EnsureDir creates dir if it doesn't exist and returns it
func EnsureDir(dir string) (string, error) {
	return dir, os.MkdirAll(dir, 0755)
}
