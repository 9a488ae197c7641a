// Package printjob sequences a print: acquire a bitmap or text, encode it
// to ESC/POS and push the stream to the printer in chunks. One job runs
// at a time.
package printjob

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chaz8081/thermobill/internal/bitmap"
	"github.com/chaz8081/thermobill/internal/ble"
	"github.com/chaz8081/thermobill/internal/ble/protocol"
	"github.com/chaz8081/thermobill/internal/escpos"
	"github.com/chaz8081/thermobill/internal/journal"
	"github.com/chaz8081/thermobill/internal/receipt"
	"github.com/chaz8081/thermobill/internal/text"
)

// ErrBusy rejects a print requested while another is in flight.
var ErrBusy = errors.New("printjob: a print job is already running")

// Kinds of job recorded in the journal.
const (
	KindReceipt = "receipt"
	KindList    = "list"
	KindText    = "text"
	KindImage   = "image"
	KindTest    = "test"
)

// Writer sends one chunk to the printer. *ble.Manager implements it.
type Writer interface {
	Write(chunk []byte) error
}

// Renderer turns a laid out document into a bitmap.
type Renderer interface {
	Render(doc receipt.Document) (image.Image, error)
}

// Recorder stores job outcomes. *journal.Store implements it.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Options configures an Orchestrator.
type Options struct {
	Encoder  escpos.Encoder
	Bitmap   bitmap.Options
	Text     text.Options
	Transmit ble.TransmitOptions
	// Renderer, when set, sends documents through the bitmap path.
	// Without it documents print as ESC/POS text.
	Renderer Renderer
	Journal  Recorder
	Logger   *zap.Logger
}

// Job describes what is being printed, for logging and the journal.
type Job struct {
	Kind       string
	CustomerID string
	Amount     int64
	Number     string
}

// Result summarizes a finished or failed job.
type Result struct {
	ID       string
	Bytes    int
	Chunks   int
	Sent     int
	Duration time.Duration
}

// Orchestrator runs print jobs against one printer connection.
type Orchestrator struct {
	w    Writer
	opts Options
	log  *zap.Logger

	mu sync.Mutex

	now   func() time.Time
	newID func() string
}

// New creates an orchestrator writing through w.
func New(w Writer, opts Options) (*Orchestrator, error) {
	if w == nil {
		return nil, fmt.Errorf("printjob: nil writer")
	}
	if opts.Transmit.ChunkSize <= 0 {
		opts.Transmit = ble.ProfileFast.Options()
	}
	if opts.Bitmap.Width <= 0 {
		opts.Bitmap.Width = bitmap.DefaultWidth
	}
	if opts.Text.CodePage.Name == "" {
		opts.Text.CodePage, _ = text.LookupCodePage("")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		w:     w,
		opts:  opts,
		log:   opts.Logger,
		now:   time.Now,
		newID: uuid.NewString,
	}, nil
}

// EncodeImage scales img to the print width and encodes it.
func (o *Orchestrator) EncodeImage(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", escpos.ErrInvalidDimensions)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", escpos.ErrInvalidDimensions, b.Dx(), b.Dy())
	}
	return o.opts.Encoder.Encode(bitmap.Prepare(img, o.opts.Bitmap))
}

// EncodeDocument renders doc to a bitmap when a Renderer is configured
// and otherwise emits it on the direct text path.
func (o *Orchestrator) EncodeDocument(doc receipt.Document) ([]byte, error) {
	if o.opts.Renderer == nil {
		return doc.EscPos(o.opts.Text), nil
	}
	img, err := o.opts.Renderer.Render(doc)
	if err != nil {
		return nil, fmt.Errorf("printjob: render: %w", err)
	}
	return o.EncodeImage(img)
}

// EncodeText uses the direct text path unless s cannot be represented
// in the configured code page and a Renderer is available.
func (o *Orchestrator) EncodeText(s string) ([]byte, error) {
	if o.opts.Renderer != nil && o.opts.Text.NeedsImage(o.opts.Text.Prepare(s)) {
		var doc receipt.Document
		for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
			doc.Lines = append(doc.Lines, receipt.Line{Text: line})
		}
		return o.EncodeDocument(doc)
	}
	return text.TextToEscPos(s, o.opts.Text), nil
}

// PrintImage prints a captured bitmap.
func (o *Orchestrator) PrintImage(ctx context.Context, img image.Image, job Job) (Result, error) {
	return o.run(ctx, job, func() ([]byte, error) { return o.EncodeImage(img) })
}

// PrintDocument prints a laid out receipt or list.
func (o *Orchestrator) PrintDocument(ctx context.Context, doc receipt.Document, job Job) (Result, error) {
	return o.run(ctx, job, func() ([]byte, error) { return o.EncodeDocument(doc) })
}

// PrintText prints plain text.
func (o *Orchestrator) PrintText(ctx context.Context, s string, job Job) (Result, error) {
	return o.run(ctx, job, func() ([]byte, error) { return o.EncodeText(s) })
}

// PrintStream sends an already encoded command stream.
func (o *Orchestrator) PrintStream(ctx context.Context, stream []byte, job Job) (Result, error) {
	return o.run(ctx, job, func() ([]byte, error) { return stream, nil })
}

func (o *Orchestrator) run(ctx context.Context, job Job, encode func() ([]byte, error)) (Result, error) {
	if !o.mu.TryLock() {
		return Result{}, ErrBusy
	}
	defer o.mu.Unlock()

	res := Result{ID: o.newID()}
	started := o.now()
	log := o.log.With(zap.String("job", res.ID), zap.String("kind", job.Kind))

	stream, err := encode()
	if err != nil {
		log.Error("[PRINT] encoding failed", zap.Error(err))
		o.record(ctx, job, res, stream, started, err)
		return res, err
	}
	res.Bytes = len(stream)
	res.Chunks = protocol.Count(len(stream), o.opts.Transmit.ChunkSize)
	log.Info("[PRINT] sending",
		zap.Int("bytes", res.Bytes),
		zap.Int("chunks", res.Chunks),
		zap.Int("chunk_size", o.opts.Transmit.ChunkSize),
		zap.Duration("chunk_delay", o.opts.Transmit.Delay))

	topts := o.opts.Transmit
	progress := topts.Progress
	topts.Progress = func(sent, total int) {
		res.Sent = sent
		if progress != nil {
			progress(sent, total)
		}
	}
	err = ble.Transmit(ctx, stream, topts, o.w.Write)
	res.Duration = o.now().Sub(started)

	switch {
	case err == nil:
		log.Info("[PRINT] done", zap.Duration("took", res.Duration))
	case errors.Is(err, ble.ErrCancelled):
		log.Warn("[PRINT] printing stopped", zap.Int("sent", res.Sent), zap.Int("chunks", res.Chunks))
	default:
		log.Error("[PRINT] printing failed", zap.Int("sent", res.Sent), zap.Int("chunks", res.Chunks), zap.Error(err))
	}
	o.record(ctx, job, res, stream, started, err)
	return res, err
}

func (o *Orchestrator) record(ctx context.Context, job Job, res Result, stream []byte, started time.Time, err error) {
	if o.opts.Journal == nil {
		return
	}
	e := journal.Entry{
		ID:         res.ID,
		Kind:       job.Kind,
		CustomerID: job.CustomerID,
		Amount:     job.Amount,
		Number:     job.Number,
		Bytes:      res.Bytes,
		Chunks:     res.Chunks,
		Status:     journal.StatusPrinted,
		StartedAt:  started,
		FinishedAt: o.now(),
	}
	if len(stream) > 0 {
		e.Digest = journal.Digest(stream)
	}
	if err != nil {
		e.Status = journal.StatusFailed
		if errors.Is(err, ble.ErrCancelled) {
			e.Status = journal.StatusCancelled
		}
		e.Error = err.Error()
	}
	// A cancelled job still gets its entry.
	if rerr := o.opts.Journal.Record(context.WithoutCancel(ctx), e); rerr != nil {
		o.log.Warn("[JOURNAL] recording job failed", zap.String("job", res.ID), zap.Error(rerr))
	}
}
