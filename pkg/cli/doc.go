// Package cli provides common utilities for the smartnpc command-line tool.
//
// This package includes:
//   - Configuration contexts holding service credentials, kubectl style
//   - Output formatting (YAML, JSON, raw) and status printing
//   - Chat script loading (YAML/JSON)
//   - lipgloss styles for transcripts and character cards
//
// Configuration is stored in ~/.smartnpc/<app>/config.yaml:
//
//	cfg, err := cli.LoadConfig("smartnpc")
//	ctx, err := cfg.ResolveContext(name)
//	conn, err := smartnpc.Connect(c, ctx.ConnectionConfig())
package cli
