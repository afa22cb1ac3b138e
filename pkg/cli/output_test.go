package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]any{"name": "test", "value": 123}

	if err := Output(data, OutputOptions{Format: FormatJSON, Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if result["name"] != "test" {
		t.Errorf("name = %v, want %q", result["name"], "test")
	}
	if !strings.Contains(buf.String(), "\n  \"name\"") {
		t.Errorf("JSON should be indented by default:\n%s", buf.String())
	}
}

func TestOutput_YAML(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]any{"name": "test"}

	// The empty format defaults to YAML.
	if err := Output(data, OutputOptions{Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if got := buf.String(); !strings.Contains(got, "name: test") {
		t.Errorf("YAML output = %q", got)
	}
}

func TestOutput_Raw(t *testing.T) {
	var buf bytes.Buffer
	if err := Output("hello", OutputOptions{Format: FormatRaw, Writer: &buf}); err != nil {
		t.Fatal(err)
	}
	if err := Output([]byte(" world"), OutputOptions{Format: FormatRaw, Writer: &buf}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "hello world" {
		t.Errorf("raw output = %q", buf.String())
	}
}

func TestOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := Output([]int{1, 2}, OutputOptions{Format: FormatJSON, File: path}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got []int
	if err := json.Unmarshal(data, &got); err != nil || len(got) != 2 {
		t.Errorf("file output = %q, %v", data, err)
	}
}

func TestOutput_UnsupportedFormat(t *testing.T) {
	if err := Output(1, OutputOptions{Format: "xml", Writer: &bytes.Buffer{}}); err == nil {
		t.Error("unsupported format should fail")
	}
}

func TestPrinter(t *testing.T) {
	var out, errOut bytes.Buffer
	p := &Printer{Out: &out, Err: &errOut}

	p.Success("saved %s", "dev")
	p.Info("using %d", 1)
	p.Debug("hidden")
	p.Warning("careful")
	p.Error("%v", errors.New("boom"))

	if got := out.String(); got != "✓ saved dev\nℹ using 1\n" {
		t.Errorf("stdout = %q", got)
	}
	if got := errOut.String(); got != "⚠ careful\nError: boom\n" {
		t.Errorf("stderr = %q", got)
	}

	p.Verbose = true
	p.Debug("shown")
	if !strings.HasSuffix(errOut.String(), "[verbose] shown\n") {
		t.Errorf("verbose output missing: %q", errOut.String())
	}
}
