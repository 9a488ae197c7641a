package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chaz8081/thermobill/internal/ble"
	"github.com/chaz8081/thermobill/internal/escpos"
	"github.com/chaz8081/thermobill/internal/journal"
	"github.com/chaz8081/thermobill/internal/printjob"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{printjob.ErrBusy, "another print is still running"},
		{fmt.Errorf("%w after 3 of 9 chunks", ble.ErrCancelled), "printing stopped"},
		{&ble.TransmissionError{Index: 7, Err: errors.New("gatt")}, "printing failed at chunk 7"},
		{fmt.Errorf("%w on X", ble.ErrNoWritableCharacteristic), "not supported"},
		{fmt.Errorf("%w: timeout", ble.ErrConnectionFailed), "could not connect"},
		{fmt.Errorf("%w: bad header", escpos.ErrDecode), "could not be read"},
		{errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		if got := userMessage(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("userMessage(%v) = %q, want it to contain %q", tt.err, got, tt.want)
		}
	}
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Raster.Width != 384 {
		t.Errorf("Raster.Width = %d, want default 384", cfg.Raster.Width)
	}
}

func TestLoadConfigExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("raster:\n  width: 576\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Raster.Width != 576 {
		t.Errorf("Raster.Width = %d, want 576", cfg.Raster.Width)
	}
}

func TestFormatEntry(t *testing.T) {
	start := time.Date(2026, 10, 14, 10, 30, 0, 0, time.Local)
	line := formatEntry(journal.Entry{
		Kind:       printjob.KindReceipt,
		Status:     journal.StatusFailed,
		CustomerID: "1042",
		Amount:     5000,
		Number:     "AB12",
		Bytes:      4813,
		Chunks:     241,
		Error:      "link lost",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	})
	for _, want := range []string{"2026-10-14 10:30:00", "failed", "4813 B", "customer 1042", "#AB12", "error: link lost", "1.5s"} {
		if !strings.Contains(line, want) {
			t.Errorf("formatEntry() = %q, missing %q", line, want)
		}
	}
}

func TestFileWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := fileWriter{f}
	for _, chunk := range [][]byte{{0x1B, 0x40}, {0x0A}} {
		if err := w.Write(chunk); err != nil {
			t.Fatal(err)
		}
	}
	f.Close()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "\x1b@\n" {
		t.Errorf("file = % x", got)
	}
}

func TestFailureReporterHoldsUntilAttached(t *testing.T) {
	var out bytes.Buffer
	rep := &failureReporter{w: &out}
	gaveUp := fmt.Errorf("ble: giving up after 3 attempts: %w", ble.ErrConnectionFailed)

	rep.report(gaveUp)
	if out.Len() != 0 {
		t.Errorf("report before attach printed %q", out.String())
	}
	waitErr := fmt.Errorf("%w: gave up", ble.ErrConnectionFailed)
	if got := rep.reason(waitErr); got != gaveUp {
		t.Errorf("reason() = %v, want the held failure", got)
	}
	cancelled := fmt.Errorf("%w: interrupted", ble.ErrCancelled)
	if got := rep.reason(cancelled); got != cancelled {
		t.Errorf("reason(cancelled) = %v, want it unchanged", got)
	}

	rep.attach()
	rep.report(gaveUp)
	if n := strings.Count(out.String(), "Printer: "); n != 1 {
		t.Errorf("printed %d messages after attach, want 1: %q", n, out.String())
	}
}

func TestFailureReporterWithoutHeldError(t *testing.T) {
	rep := &failureReporter{w: &bytes.Buffer{}}
	err := errors.New("boom")
	if got := rep.reason(err); got != err {
		t.Errorf("reason() = %v, want %v", got, err)
	}
}
