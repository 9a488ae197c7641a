package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the printer link state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a snapshot of the manager's state.
type Status struct {
	State          State
	Address        string
	Service        string
	Characteristic string
	// WithoutResponse is true when the selected characteristic accepts
	// write-without-response.
	WithoutResponse bool
	// Attempts is the number of consecutive failed connects.
	Attempts  int
	LastCheck time.Time
}

// ManagerOptions configures the connection manager.
type ManagerOptions struct {
	AutoReconnect    bool
	MaxAttempts      int           // consecutive failures before giving up
	ReconnectDelay   time.Duration // fixed delay before each automatic retry
	LivenessInterval time.Duration // 0 disables polling
	ConnectTimeout   time.Duration // per attempt, 0 for none

	Logger *zap.Logger
	// OnFailure receives failures that need the user's attention: an
	// exhausted reconnect budget or an incompatible device.
	OnFailure func(err error)
	// OnStateChange receives every state transition.
	OnStateChange func(Status)
}

// DefaultManagerOptions returns the field-tested policy: three attempts,
// two seconds apart, with a liveness poll every fifty seconds.
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		AutoReconnect:    true,
		MaxAttempts:      3,
		ReconnectDelay:   2 * time.Second,
		LivenessInterval: 50 * time.Second,
		ConnectTimeout:   10 * time.Second,
	}
}

// Manager owns the printer connection. Only one connect runs at a time;
// a Connect while another is in flight is ignored.
type Manager struct {
	transport Transport
	opts      ManagerOptions
	log       *zap.Logger

	mu         sync.Mutex
	status     Status
	retry      *time.Timer
	closed     bool
	pollStop   chan struct{}
	pollDone   chan struct{}
	generation uint64
	events     chan Status

	// writeMu serializes writes to the characteristic.
	writeMu sync.Mutex

	now func() time.Time
}

// NewManager creates a manager in the Disconnected state.
func NewManager(t Transport, opts ManagerOptions) (*Manager, error) {
	if t == nil {
		return nil, fmt.Errorf("ble: nil transport")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.ReconnectDelay < 0 {
		opts.ReconnectDelay = 0
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	m := &Manager{
		transport: t,
		opts:      opts,
		log:       opts.Logger,
		now:       time.Now,
	}
	if opts.OnStateChange != nil {
		m.events = make(chan Status, 32)
		go func(events <-chan Status) {
			for st := range events {
				opts.OnStateChange(st)
			}
		}(m.events)
	}
	if n, ok := t.(DisconnectNotifier); ok {
		n.SetDisconnectHandler(m.handleLost)
	}
	return m, nil
}

// Status returns a snapshot of the current state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connect connects to addr, discovers its services and selects the
// characteristic to print through. Calling Connect while a connect is
// already in progress, or for the address already connected, is a no-op.
// On failure the automatic reconnect policy applies.
func (m *Manager) Connect(ctx context.Context, addr string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("ble: manager closed")
	}
	switch {
	case m.status.State == Connecting:
		m.mu.Unlock()
		m.log.Debug("[BLE] connect already in progress, ignoring", zap.String("addr", addr))
		return nil
	case m.status.State == Connected && strings.EqualFold(m.status.Address, addr):
		m.mu.Unlock()
		return nil
	case m.status.State == Connected:
		prev := m.status.Address
		m.mu.Unlock()
		if err := m.Disconnect(); err != nil {
			m.log.Warn("[BLE] disconnect before switching device failed", zap.String("addr", prev), zap.Error(err))
		}
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return fmt.Errorf("ble: manager closed")
		}
		if m.status.State != Disconnected {
			// Another Connect started while the old link was dropped.
			m.mu.Unlock()
			m.log.Debug("[BLE] connect already in progress, ignoring", zap.String("addr", addr))
			return nil
		}
	}
	m.stopRetryLocked()
	gen := m.beginLocked(addr)
	m.mu.Unlock()

	return m.run(ctx, addr, gen)
}

// beginLocked moves to Connecting and returns the attempt generation.
func (m *Manager) beginLocked(addr string) uint64 {
	m.generation++
	m.status.State = Connecting
	m.status.Address = addr
	m.status.Service = ""
	m.status.Characteristic = ""
	m.notifyLocked()
	return m.generation
}

func (m *Manager) run(ctx context.Context, addr string, gen uint64) error {
	target, err := m.attempt(ctx, addr)

	m.mu.Lock()
	if m.generation != gen || m.closed {
		m.mu.Unlock()
		if err == nil {
			_ = m.transport.Disconnect(addr)
		}
		return fmt.Errorf("%w: connect to %s superseded", ErrConnectionFailed, addr)
	}
	if err == nil {
		m.status.State = Connected
		m.status.Service = target.Service
		m.status.Characteristic = target.Characteristic
		m.status.WithoutResponse = target.Properties.Has(PropWriteWithoutResponse)
		m.status.Attempts = 0
		m.notifyLocked()
		m.mu.Unlock()
		m.log.Info("[BLE] connected",
			zap.String("addr", addr),
			zap.String("service", target.Service),
			zap.String("characteristic", target.Characteristic),
			zap.Bool("without_response", target.Properties.Has(PropWriteWithoutResponse)))
		return nil
	}

	m.status.State = Disconnected
	if errors.Is(err, ErrNoWritableCharacteristic) {
		m.status.Attempts = 0
		m.notifyLocked()
		m.mu.Unlock()
		m.log.Error("[BLE] device has no writable characteristic", zap.String("addr", addr))
		m.surface(err)
		return err
	}

	m.status.Attempts++
	attempts := m.status.Attempts
	retry := m.opts.AutoReconnect && attempts < m.opts.MaxAttempts
	if retry {
		m.scheduleLocked(addr)
	} else {
		m.status.Attempts = 0
	}
	m.notifyLocked()
	m.mu.Unlock()

	if retry {
		m.log.Warn("[BLE] connect failed, retrying",
			zap.String("addr", addr), zap.Int("attempt", attempts),
			zap.Duration("delay", m.opts.ReconnectDelay), zap.Error(err))
		return err
	}
	m.log.Error("[BLE] connect failed", zap.String("addr", addr), zap.Int("attempt", attempts), zap.Error(err))
	m.surface(fmt.Errorf("ble: giving up on %s after %d attempts: %w", addr, attempts, err))
	return err
}

// attempt performs one connect and discovery. It leaves the transport
// disconnected on failure.
func (m *Manager) attempt(ctx context.Context, addr string) (CharacteristicInfo, error) {
	if m.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.ConnectTimeout)
		defer cancel()
	}

	if err := m.transport.Connect(ctx, addr); err != nil {
		return CharacteristicInfo{}, fmt.Errorf("%w: connect to %s: %v", ErrConnectionFailed, addr, err)
	}
	infos, err := m.transport.DiscoverServices(ctx, addr)
	if err != nil {
		_ = m.transport.Disconnect(addr)
		return CharacteristicInfo{}, fmt.Errorf("%w: discover services on %s: %v", ErrConnectionFailed, addr, err)
	}
	target, err := SelectWritable(infos)
	if err != nil {
		_ = m.transport.Disconnect(addr)
		return CharacteristicInfo{}, fmt.Errorf("%w on %s", err, addr)
	}
	return target, nil
}

// SelectWritable returns the first characteristic supporting
// write-without-response, or failing that the first supporting write.
func SelectWritable(infos []CharacteristicInfo) (CharacteristicInfo, error) {
	for _, c := range infos {
		if c.Properties.Has(PropWriteWithoutResponse) {
			return c, nil
		}
	}
	for _, c := range infos {
		if c.Properties.Has(PropWrite) {
			return c, nil
		}
	}
	return CharacteristicInfo{}, ErrNoWritableCharacteristic
}

// scheduleLocked arms the single retry timer.
func (m *Manager) scheduleLocked(addr string) {
	m.stopRetryLocked()
	m.retry = time.AfterFunc(m.opts.ReconnectDelay, func() {
		m.mu.Lock()
		if m.closed || m.status.State != Disconnected {
			m.mu.Unlock()
			return
		}
		m.retry = nil
		gen := m.beginLocked(addr)
		m.mu.Unlock()

		m.log.Info("[BLE] reconnecting", zap.String("addr", addr))
		_ = m.run(context.Background(), addr, gen)
	})
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

// handleLost marks an established link as lost and applies the
// reconnect policy.
func (m *Manager) handleLost(addr string) {
	m.mu.Lock()
	if m.closed || m.status.State != Connected || !strings.EqualFold(m.status.Address, addr) {
		m.mu.Unlock()
		return
	}
	m.status.State = Disconnected
	m.status.Service = ""
	m.status.Characteristic = ""
	retry := m.opts.AutoReconnect && m.status.Attempts < m.opts.MaxAttempts
	if retry {
		m.scheduleLocked(addr)
	}
	m.notifyLocked()
	m.mu.Unlock()

	m.log.Warn("[BLE] connection lost", zap.String("addr", addr), zap.Bool("reconnect", retry))
	if !retry {
		m.surface(fmt.Errorf("%w: lost connection to %s", ErrConnectionFailed, addr))
	}
}

// CheckLiveness polls the transport once and handles a silently dropped link.
func (m *Manager) CheckLiveness() {
	m.mu.Lock()
	m.status.LastCheck = m.now()
	state, addr := m.status.State, m.status.Address
	m.mu.Unlock()

	if state != Connected {
		return
	}
	if m.transport.IsConnected(addr) {
		return
	}
	m.handleLost(addr)
}

// Start begins liveness polling. It is a no-op when polling is disabled
// or already running.
func (m *Manager) Start() {
	if m.opts.LivenessInterval <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pollStop != nil || m.closed {
		return
	}
	stop, done := make(chan struct{}), make(chan struct{})
	m.pollStop, m.pollDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.opts.LivenessInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.CheckLiveness()
			}
		}
	}()
}

// Disconnect drops the link and cancels any pending retry. The attempt
// counter is reset.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.stopRetryLocked()
	m.generation++
	addr := m.status.Address
	was := m.status.State
	m.status.State = Disconnected
	m.status.Service = ""
	m.status.Characteristic = ""
	m.status.Attempts = 0
	m.notifyLocked()
	m.mu.Unlock()

	if was == Disconnected || addr == "" {
		return nil
	}
	m.log.Info("[BLE] disconnecting", zap.String("addr", addr))
	if err := m.transport.Disconnect(addr); err != nil {
		return fmt.Errorf("ble: disconnect %s: %w", addr, err)
	}
	return nil
}

// Close stops polling and retries and disconnects.
func (m *Manager) Close() error {
	m.mu.Lock()
	stop, done := m.pollStop, m.pollDone
	m.pollStop, m.pollDone = nil, nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	err := m.Disconnect()

	m.mu.Lock()
	if !m.closed {
		m.closed = true
		if m.events != nil {
			close(m.events)
		}
	}
	m.mu.Unlock()
	return err
}

// Write sends one chunk through the selected characteristic, using
// write-without-response when the characteristic supports it.
func (m *Manager) Write(chunk []byte) error {
	m.mu.Lock()
	st := m.status
	m.mu.Unlock()
	if st.State != Connected {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if st.WithoutResponse {
		return m.transport.WriteWithoutResponse(st.Address, st.Service, st.Characteristic, chunk)
	}
	return m.transport.WriteWithResponse(st.Address, st.Service, st.Characteristic, chunk)
}

// notifyLocked queues the current status for OnStateChange, dropping it
// when the listener has fallen behind.
func (m *Manager) notifyLocked() {
	if m.events == nil || m.closed {
		return
	}
	select {
	case m.events <- m.status:
	default:
		m.log.Debug("[BLE] state listener behind, dropping update", zap.Stringer("state", m.status.State))
	}
}

func (m *Manager) surface(err error) {
	if m.opts.OnFailure != nil {
		m.opts.OnFailure(err)
	}
}
