package logger

import (
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns what
// was written.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	w.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured output: %v", err)
	}
	return string(out)
}

func TestSubscribeReceivesEntries(t *testing.T) {
	log := New("test")
	log.DisableConsoleOutput()
	ch := log.Subscribe()

	log.Infof("applied %d migration(s)", 3)
	log.Warnf("plugin skipped")

	entry := <-ch
	if entry.Level != "INFO" || entry.Message != "applied 3 migration(s)" {
		t.Errorf("unexpected first entry: %+v", entry)
	}
	if entry.Time.IsZero() {
		t.Error("entry time should be set")
	}

	entry = <-ch
	if entry.Level != "WARN" || entry.Message != "plugin skipped" {
		t.Errorf("unexpected second entry: %+v", entry)
	}
}

func TestSubscribersReceiveDebugWithoutVerbose(t *testing.T) {
	log := New("test")
	log.DisableConsoleOutput()
	ch := log.Subscribe()

	log.Debugf("resolved connection for tenant %s", "acme")

	select {
	case entry := <-ch:
		if entry.Level != "DEBUG" {
			t.Errorf("level = %q, expected DEBUG", entry.Level)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive debug entry")
	}
}

func TestDisableConsoleOutputKeepsSubscribersFed(t *testing.T) {
	log := New("test")
	log.DisableConsoleOutput()
	ch := log.Subscribe()

	out := captureStdout(t, func() {
		log.Errorf("migration failed")
	})
	if out != "" {
		t.Errorf("console output should be suppressed, got %q", out)
	}

	entry := <-ch
	if entry.Level != "ERROR" || entry.Message != "migration failed" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestConsoleHidesDebugUnlessVerbose(t *testing.T) {
	log := New("test")

	out := captureStdout(t, func() {
		log.Debugf("hidden")
	})
	if out != "" {
		t.Errorf("debug should not reach the console without verbose, got %q", out)
	}

	log.SetVerbose(true)
	out = captureStdout(t, func() {
		log.Debugf("visible")
	})
	if !strings.Contains(out, "visible") {
		t.Errorf("verbose debug should reach the console, got %q", out)
	}
}

func TestFullSubscriberDoesNotBlock(t *testing.T) {
	log := New("test")
	log.DisableConsoleOutput()
	log.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			log.Infof("entry %d", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("logging blocked on a full subscriber channel")
	}
}
