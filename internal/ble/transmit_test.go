package ble

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"
	"time"

	"github.com/chaz8081/thermobill/internal/escpos"
)

type recordingWriter struct {
	chunks [][]byte
	failAt int // 0-based chunk index to fail, -1 never
	onSent func(n int)
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{failAt: -1}
}

func (w *recordingWriter) write(chunk []byte) error {
	if len(w.chunks) == w.failAt {
		return errors.New("write rejected")
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	w.chunks = append(w.chunks, cp)
	if w.onSent != nil {
		w.onSent(len(w.chunks))
	}
	return nil
}

func TestTransmitChunking(t *testing.T) {
	tests := []struct {
		n, size, want int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{4810, 20, 241},
		{4813, 20, 241},
		{4813, 200, 25},
		{100, 1, 100},
	}
	for _, tt := range tests {
		stream := make([]byte, tt.n)
		for i := range stream {
			stream[i] = byte(i * 7)
		}
		w := newRecordingWriter()
		err := Transmit(context.Background(), stream, TransmitOptions{ChunkSize: tt.size}, w.write)
		if err != nil {
			t.Fatalf("Transmit(%d, %d) error = %v", tt.n, tt.size, err)
		}
		if len(w.chunks) != tt.want {
			t.Errorf("Transmit(%d, %d) wrote %d chunks, want %d", tt.n, tt.size, len(w.chunks), tt.want)
		}
		for i, c := range w.chunks {
			if len(c) == 0 || len(c) > tt.size {
				t.Errorf("chunk %d has %d bytes, want 1..%d", i, len(c), tt.size)
			}
		}
		if got := bytes.Join(w.chunks, nil); !bytes.Equal(got, stream) {
			t.Errorf("Transmit(%d, %d) reassembled stream differs", tt.n, tt.size)
		}
	}
}

func TestTransmitEncodedImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 384, 100))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	stream, err := escpos.DefaultEncoder().Encode(img)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	w := newRecordingWriter()
	if err := Transmit(context.Background(), stream, ProfileSafe.Options(), w.write); err != nil {
		t.Fatalf("Transmit() error = %v", err)
	}
	if len(w.chunks) != 241 {
		t.Errorf("chunks = %d, want 241", len(w.chunks))
	}
	if !bytes.HasPrefix(w.chunks[0], []byte{0x1B, 0x40, 0x1D, 0x76, 0x30, 0x00}) {
		t.Errorf("first chunk % x does not start with init and raster header", w.chunks[0])
	}
}

func TestTransmitCancelBeforeChunk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const k = 5
	w := newRecordingWriter()
	w.onSent = func(n int) {
		if n == k-1 {
			cancel()
		}
	}
	err := Transmit(ctx, make([]byte, 400), TransmitOptions{ChunkSize: 20}, w.write)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if len(w.chunks) != k-1 {
		t.Errorf("wrote %d chunks, want %d", len(w.chunks), k-1)
	}
}

func TestTransmitAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := newRecordingWriter()
	err := Transmit(ctx, make([]byte, 40), TransmitOptions{ChunkSize: 20}, w.write)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if len(w.chunks) != 0 {
		t.Errorf("wrote %d chunks, want 0", len(w.chunks))
	}
}

func TestTransmitCancelDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := newRecordingWriter()
	w.onSent = func(int) {
		go func() {
			time.Sleep(5 * time.Millisecond)
			cancel()
		}()
	}

	start := time.Now()
	err := Transmit(ctx, make([]byte, 60), TransmitOptions{ChunkSize: 20, Delay: time.Second}, w.write)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cancel took %v, want prompt return", elapsed)
	}
	if len(w.chunks) != 1 {
		t.Errorf("wrote %d chunks, want 1", len(w.chunks))
	}
}

func TestTransmitWriteFailure(t *testing.T) {
	w := newRecordingWriter()
	w.failAt = 3
	err := Transmit(context.Background(), make([]byte, 200), TransmitOptions{ChunkSize: 20}, w.write)

	var terr *TransmissionError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *TransmissionError", err)
	}
	if terr.Index != 3 {
		t.Errorf("Index = %d, want 3", terr.Index)
	}
	if !errors.Is(err, ErrTransmissionFailed) {
		t.Error("error should match ErrTransmissionFailed")
	}
	if len(w.chunks) != 3 {
		t.Errorf("wrote %d chunks, want 3 with no retry", len(w.chunks))
	}
}

func TestTransmitDelayBetweenChunks(t *testing.T) {
	w := newRecordingWriter()
	start := time.Now()
	err := Transmit(context.Background(), make([]byte, 80), TransmitOptions{ChunkSize: 20, Delay: 5 * time.Millisecond}, w.write)
	if err != nil {
		t.Fatalf("Transmit() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("elapsed %v, want at least three pauses", elapsed)
	}
}

func TestTransmitProgress(t *testing.T) {
	var sent []int
	var total int
	opts := TransmitOptions{ChunkSize: 10, Progress: func(s, n int) {
		sent = append(sent, s)
		total = n
	}}
	if err := Transmit(context.Background(), make([]byte, 25), opts, newRecordingWriter().write); err != nil {
		t.Fatalf("Transmit() error = %v", err)
	}
	if total != 3 || len(sent) != 3 || sent[2] != 3 {
		t.Errorf("progress = %v of %d, want [1 2 3] of 3", sent, total)
	}
}

func TestTransmitInvalidOptions(t *testing.T) {
	if err := Transmit(context.Background(), []byte{1}, TransmitOptions{}, newRecordingWriter().write); err == nil {
		t.Error("zero chunk size should fail")
	}
	if err := Transmit(context.Background(), []byte{1}, TransmitOptions{ChunkSize: 20}, nil); err == nil {
		t.Error("nil write should fail")
	}
}

func TestTransmitThroughManagerLinkDrop(t *testing.T) {
	tr := newMockTransport()
	m := mustNewManager(t, tr, testOpts())
	if err := m.Connect(context.Background(), testAddr); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	opts := TransmitOptions{ChunkSize: 20, Progress: func(sent, _ int) {
		if sent == 2 {
			tr.dropLink()
		}
	}}
	err := Transmit(context.Background(), make([]byte, 100), opts, m.Write)

	var terr *TransmissionError
	if !errors.As(err, &terr) || terr.Index != 2 {
		t.Fatalf("err = %v, want TransmissionError at chunk 2", err)
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.writes) != 2 {
		t.Errorf("transport saw %d writes, want 2", len(tr.writes))
	}
	for i, noRsp := range tr.writeKinds {
		if !noRsp {
			t.Errorf("write %d used write-with-response", i)
		}
	}
}

func TestLookupProfile(t *testing.T) {
	tests := []struct {
		name    string
		want    Profile
		wantErr bool
	}{
		{"fast", ProfileFast, false},
		{"", ProfileFast, false},
		{"safe", ProfileSafe, false},
		{"turbo", Profile{}, true},
	}
	for _, tt := range tests {
		got, err := LookupProfile(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("LookupProfile(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("LookupProfile(%q) = %+v, want %+v", tt.name, got, tt.want)
		}
	}
	if ProfileSafe.ChunkSize != 20 || ProfileSafe.Delay != 10*time.Millisecond {
		t.Errorf("ProfileSafe = %+v", ProfileSafe)
	}
	if ProfileFast.ChunkSize != 200 || ProfileFast.Delay != 0 {
		t.Errorf("ProfileFast = %+v", ProfileFast)
	}
}
