package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

// Config is read from the environment.
type Config struct {
	ServerAddr string

	// Keys is "keyId:publicKey" pairs separated by commas. Empty accepts
	// any credentials.
	Keys map[string]string

	// CharactersFile is a YAML list of characters. Empty serves the demo
	// cast.
	CharactersFile string

	// RedisAddr selects the Redis history store; HistoryDir selects Badger.
	// With neither, history lives in memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	HistoryDir    string

	WordDelay  time.Duration
	SpeechIdle time.Duration
	Transcript string

	// Voice is "tone" to attach a generated WAV tone to every word, or
	// empty for text only.
	Voice string

	LogLevel string
}

func LoadConfig() (*Config, error) {
	keys, err := parseKeys(getEnv("MOCK_KEYS", ""))
	if err != nil {
		return nil, err
	}
	return &Config{
		ServerAddr:     getEnv("SERVER_ADDR", ":8080"),
		Keys:           keys,
		CharactersFile: getEnv("CHARACTERS_FILE", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		HistoryDir:    getEnv("HISTORY_DIR", ""),

		WordDelay:  time.Duration(getEnvInt("WORD_DELAY_MS", 80)) * time.Millisecond,
		SpeechIdle: time.Duration(getEnvInt("SPEECH_IDLE_MS", 500)) * time.Millisecond,
		Transcript: getEnv("TRANSCRIPT", ""),
		Voice:      getEnv("VOICE", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseKeys(s string) (map[string]string, error) {
	keys := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, key, ok := strings.Cut(pair, ":")
		if !ok || id == "" || key == "" {
			return nil, fmt.Errorf("MOCK_KEYS: malformed pair %q, want keyId:publicKey", pair)
		}
		keys[id] = key
	}
	return keys, nil
}

// loadCharacters reads a YAML list of characters. Field names are the
// wire names, e.g. personalityTraits.
func loadCharacters(path string) ([]smartnpc.CharacterInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read characters: %w", err)
	}
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse characters %s: %w", path, err)
	}
	var chars []smartnpc.CharacterInfo
	if err := json.Unmarshal(js, &chars); err != nil {
		return nil, fmt.Errorf("parse characters %s: %w", path, err)
	}
	for i, c := range chars {
		if c.ID == "" {
			return nil, fmt.Errorf("characters %s: entry %d has no id", path, i)
		}
	}
	return chars, nil
}
