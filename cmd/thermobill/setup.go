package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/chaz8081/thermobill/internal/bitmap"
	"github.com/chaz8081/thermobill/internal/ble"
	"github.com/chaz8081/thermobill/internal/config"
	"github.com/chaz8081/thermobill/internal/escpos"
	"github.com/chaz8081/thermobill/internal/journal"
	"github.com/chaz8081/thermobill/internal/logging"
	"github.com/chaz8081/thermobill/internal/printjob"
	"github.com/chaz8081/thermobill/internal/receipt"
	"github.com/chaz8081/thermobill/internal/text"
)

// qrSize is the receipt QR code side in dots.
const qrSize = 160

type env struct {
	cfg *config.Config
	log *zap.Logger
}

// setup loads the config, applies environment and flag overrides and
// builds the logger.
func setup(c *cli.Context) (*env, error) {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.ApplyEnv(c.String("env-file")); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := c.String("profile"); v != "" {
		cfg.Transmit.Profile = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	log, err := logging.New(config.ParseLogLevel(cfg.LogLevel), cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log}, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}
	return config.Default(), nil
}

func newTransport(cfg *config.Config) (ble.Transport, error) {
	switch cfg.Printer.Backend {
	case "goble":
		return ble.NewGoBLETransport()
	default:
		return ble.NewTinyGoTransport(), nil
	}
}

// connect brings up the printer link and starts liveness polling.
func (e *env) connect(ctx context.Context) (*ble.Manager, error) {
	t, err := newTransport(e.cfg)
	if err != nil {
		return nil, err
	}
	if err := t.Enable(); err != nil {
		return nil, fmt.Errorf("enabling bluetooth adapter: %w", err)
	}

	rep := &failureReporter{w: os.Stderr}
	opts := e.cfg.Printer.ManagerOptions()
	opts.Logger = e.log
	opts.OnFailure = rep.report
	m, err := ble.NewManager(t, opts)
	if err != nil {
		return nil, err
	}

	addr := e.cfg.Printer.Address
	e.log.Info("[BLE] connecting", zap.String("addr", addr), zap.String("backend", e.cfg.Printer.Backend))
	if err := m.Connect(ctx, addr); err != nil {
		if errors.Is(err, ble.ErrNoWritableCharacteristic) || !e.cfg.Printer.AutoReconnect {
			m.Close()
			return nil, err
		}
		if err := waitConnected(ctx, m, e.cfg.Printer); err != nil {
			m.Close()
			return nil, rep.reason(err)
		}
	}
	rep.attach()
	m.Start()
	return m, nil
}

// failureReporter routes manager failures to the user exactly once.
// Until attach, failures are held so the command can return them to the
// exit handler; afterwards they are printed as they happen.
type failureReporter struct {
	w io.Writer

	mu   sync.Mutex
	live bool
	held error
}

func (r *failureReporter) report(err error) {
	r.mu.Lock()
	live := r.live
	if !live {
		r.held = err
	}
	r.mu.Unlock()
	if live {
		fmt.Fprintf(r.w, "Printer: %s\n", userMessage(err))
	}
}

func (r *failureReporter) attach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = true
}

// reason returns the held failure in place of a give-up error, which
// carries less detail. Cancellation is returned unchanged.
func (r *failureReporter) reason(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held == nil || errors.Is(err, ble.ErrCancelled) {
		return err
	}
	return r.held
}

// waitConnected waits for the automatic retries to establish the link.
func waitConnected(ctx context.Context, m *ble.Manager, p config.PrinterConfig) error {
	budget := time.Duration(p.MaxReconnectAttempts) * (p.ReconnectDelay + p.ConnectTimeout + time.Second)
	deadline := time.NewTimer(budget)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		st := m.Status()
		if st.State == ble.Connected {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ble.ErrCancelled, ctx.Err())
		case <-deadline.C:
			return fmt.Errorf("%w: %s did not come up", ble.ErrConnectionFailed, p.Address)
		case <-tick.C:
			if st.State == ble.Disconnected && st.Attempts == 0 {
				return fmt.Errorf("%w: gave up on %s", ble.ErrConnectionFailed, p.Address)
			}
		}
	}
}

// pipelineOptions maps the config onto orchestrator options.
func (e *env) pipelineOptions(render bool) (printjob.Options, error) {
	cfg := e.cfg
	lum, err := escpos.ParseLuminance(cfg.Raster.Luminance)
	if err != nil {
		return printjob.Options{}, err
	}
	strategy, err := escpos.ParseStrategy(cfg.Raster.Strategy)
	if err != nil {
		return printjob.Options{}, err
	}
	cp, err := text.LookupCodePage(cfg.Receipt.CodePage)
	if err != nil {
		return printjob.Options{}, err
	}
	topts, err := cfg.Transmit.Resolve()
	if err != nil {
		return printjob.Options{}, err
	}

	opts := printjob.Options{
		Encoder: escpos.Encoder{
			Luminance:      lum,
			Strategy:       strategy,
			FeedLines:      cfg.Raster.FeedLines,
			MaxBlockHeight: cfg.Raster.MaxBlockHeight,
		},
		Bitmap:   bitmap.Options{Width: cfg.Raster.Width, Dither: cfg.Raster.Dither},
		Text:     text.Options{CodePage: cp, Transliterate: cfg.Receipt.Transliterate, FeedLines: cfg.Raster.FeedLines},
		Transmit: topts,
		Logger:   e.log,
	}
	if render {
		ropts := receipt.RenderOptions{
			Width:    cfg.Raster.Width,
			FontPath: cfg.Receipt.FontPath,
			FontSize: float64(cfg.Receipt.FontSize),
			Margin:   8,
		}
		if cfg.Receipt.QR {
			ropts.QRSize = qrSize
		}
		r, err := receipt.NewRenderer(ropts)
		if err != nil {
			return printjob.Options{}, err
		}
		opts.Renderer = r
	}
	return opts, nil
}

// printer is a connected orchestrator with everything it holds open.
type printer struct {
	*printjob.Orchestrator
	manager *ble.Manager
	journal *journal.Store
}

func (p *printer) Close() {
	if p.manager != nil {
		p.manager.Close()
	}
	if p.journal != nil {
		p.journal.Close()
	}
}

// openPrinter connects to the printer and builds the print pipeline.
func (e *env) openPrinter(ctx context.Context, render bool) (*printer, error) {
	opts, err := e.pipelineOptions(render)
	if err != nil {
		return nil, err
	}

	p := &printer{}
	if e.cfg.Journal.Enabled {
		store, err := journal.Open(e.cfg.Journal.Path, e.log)
		if err != nil {
			e.log.Warn("[JOURNAL] unavailable, printing without it", zap.Error(err))
		} else {
			p.journal = store
			opts.Journal = store
		}
	}

	m, err := e.connect(ctx)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.manager = m

	lastLogged := 0
	opts.Transmit.Progress = func(sent, total int) {
		if pct := sent * 100 / total; pct/25 > lastLogged/25 || sent == total {
			lastLogged = pct
			e.log.Debug("[PRINT] progress", zap.Int("sent", sent), zap.Int("total", total))
		}
	}

	o, err := printjob.New(m, opts)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Orchestrator = o
	return p, nil
}

// userMessage maps the error taxonomy to the message shown to the agent.
func userMessage(err error) string {
	var terr *ble.TransmissionError
	switch {
	case errors.Is(err, printjob.ErrBusy):
		return "another print is still running"
	case errors.Is(err, ble.ErrCancelled):
		return "printing stopped"
	case errors.As(err, &terr):
		return fmt.Sprintf("printing failed at chunk %d, print the receipt again (%v)", terr.Index, terr.Err)
	case errors.Is(err, ble.ErrNoWritableCharacteristic):
		return "this printer has no writable characteristic and is not supported"
	case errors.Is(err, ble.ErrConnectionFailed):
		return fmt.Sprintf("could not connect to the printer: %v", err)
	case errors.Is(err, escpos.ErrDecode):
		return fmt.Sprintf("the image could not be read: %v", err)
	case errors.Is(err, escpos.ErrInvalidDimensions):
		return fmt.Sprintf("the image is empty: %v", err)
	default:
		return err.Error()
	}
}
