package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProjectMoon/reed/internal/config"
)

func TestFactory_Prefix(t *testing.T) {
	var buf bytes.Buffer
	f := NewWriterFactory(&buf)

	f.Logger("daemon").Printf("Watching: %s", "/srv/posts")

	line := buf.String()
	if !strings.HasPrefix(line, "[daemon] ") {
		t.Errorf("line %q missing component prefix", line)
	}
	if !strings.Contains(line, "Watching: /srv/posts") {
		t.Errorf("line %q missing message", line)
	}
}

func TestFactory_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "reed.log")
	f := NewFactory(config.Log{File: path, MaxSizeMB: 1})

	f.Logger("index").Println("hello")
	if err := f.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "[index] ") {
		t.Errorf("log file content %q missing prefix", data)
	}
}

func TestOrDefault(t *testing.T) {
	l := Discard()
	if OrDefault(l, "x") != l {
		t.Error("OrDefault should keep a non-nil logger")
	}
	if got := OrDefault(nil, "sync"); got.Prefix() != "[sync] " {
		t.Errorf("prefix = %q", got.Prefix())
	}
}
