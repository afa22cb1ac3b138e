package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Script is a scripted conversation for "chat --script":
//
//	character: npc-1
//	voice: true
//	pause: 500ms
//	messages:
//	  - Hello there
//	  - What's your name?
type Script struct {
	Character string   `yaml:"character" json:"character"`
	Messages  []string `yaml:"messages" json:"messages"`

	// Voice and Behaviors override the context defaults when set.
	Voice     *bool `yaml:"voice,omitempty" json:"voice,omitempty"`
	Behaviors *bool `yaml:"behaviors,omitempty" json:"behaviors,omitempty"`

	// Pause is waited between a completed reply and the next message.
	Pause Duration `yaml:"pause,omitempty" json:"pause,omitempty"`
}

// Validate checks the script has something to send.
func (s *Script) Validate() error {
	if len(s.Messages) == 0 {
		return errors.New("script has no messages")
	}
	for i, m := range s.Messages {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("script message %d is empty", i+1)
		}
	}
	return nil
}

// Duration is a time.Duration written as "1.5s" in YAML and JSON.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// LoadScript loads a chat script from a YAML or JSON file, or from stdin
// when path is "-".
func LoadScript(path string) (*Script, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	var s Script
	if err := ParseRequest(data, path, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseRequest parses request data based on file extension or content
func ParseRequest(data []byte, filename string, v any) error {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		// Try YAML first, then JSON
		if err := yaml.Unmarshal(data, v); err != nil {
			if err2 := json.Unmarshal(data, v); err2 != nil {
				return fmt.Errorf("failed to parse file (tried YAML and JSON)")
			}
		}
	}
	return nil
}
