package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/netleapio/stokercloud-controller/stokercloud"
)

const (
	// MaxFailedPolls is how many consecutive polls may fail before the
	// boiler is reported gone.
	MaxFailedPolls = 3

	// Minimum spacing of refreshes requested outside the poll interval.
	refreshInterval = 10 * time.Second
)

type BoilerChangeTypes int

const (
	ChangeNone      BoilerChangeTypes = 0
	ChangeNewBoiler BoilerChangeTypes = 1 << iota
	ChangeBoilerUpdate
	ChangeBoilerGone
)

type BoilerChange struct {
	Changes BoilerChangeTypes
	Serial  string
}

// boilerClient is the part of *stokercloud.Client the manager needs.
type boilerClient interface {
	StatusFlat(ctx context.Context) (stokercloud.Flat, error)
	Status(ctx context.Context) (*stokercloud.Controller, error)
	Refresh(ctx context.Context) (stokercloud.Document, error)
	UpdateValue(ctx context.Context, menu, name string, value decimal.Decimal) (decimal.Decimal, error)
}

// BoilerManager polls StokerCloud for one account and keeps the latest
// controller data.
//
// All calls into the client are serialised, since the client itself does no
// locking. Listeners are notified after every poll; the boiler is reported
// gone after MaxFailedPolls consecutive failures and comes back on the next
// successful poll.
type BoilerManager struct {
	lock       sync.Mutex
	clientLock sync.Mutex
	client     boilerClient
	interval   time.Duration
	log        hclog.Logger

	state     *BoilerState
	failures  int
	internal  map[string]float64
	listeners []chan BoilerChange

	refresh chan struct{}
	limiter *rate.Limiter
}

type BoilerState struct {
	serial    string
	lastSeen  time.Time
	connected bool
	lastErr   error

	// raw is the flattened document; values adds the locally held and
	// derived keys.
	raw        stokercloud.Flat
	values     stokercloud.Flat
	controller *stokercloud.Controller
}

func NewBoilerManager(client boilerClient, interval time.Duration, log hclog.Logger) *BoilerManager {
	internal := map[string]float64{}
	for _, d := range boilerNumbers {
		if d.Internal {
			internal[d.Key] = d.Default
		}
	}

	return &BoilerManager{
		client:    client,
		interval:  interval,
		log:       log,
		internal:  internal,
		listeners: make([]chan BoilerChange, 0),
		refresh:   make(chan struct{}, 1),
		limiter:   rate.NewLimiter(rate.Every(refreshInterval), 1),
	}
}

// Start polls immediately and then every interval until ctx is done.
func (m *BoilerManager) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *BoilerManager) run(ctx context.Context) {
	m.Poll(ctx, false)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll(ctx, false)
		case <-m.refresh:
			m.Poll(ctx, true)
		}
	}
}

// RequestRefresh asks the poll loop to bypass the cache on its next
// iteration. Requests beyond the refresh rate limit are dropped.
func (m *BoilerManager) RequestRefresh() bool {
	if !m.limiter.Allow() {
		return false
	}
	select {
	case m.refresh <- struct{}{}:
	default:
	}
	return true
}

// Poll reads the controller status once. With force set the cache is
// bypassed.
func (m *BoilerManager) Poll(ctx context.Context, force bool) error {
	var (
		flat stokercloud.Flat
		ctrl *stokercloud.Controller
		err  error
	)

	m.doClient(func() {
		if force {
			if _, err = m.client.Refresh(ctx); err != nil {
				return
			}
		}
		if flat, err = m.client.StatusFlat(ctx); err != nil {
			return
		}
		ctrl, err = m.client.Status(ctx)
	})

	var missing *stokercloud.MissingFieldError
	switch {
	case err == nil:
		prometheusRecordPoll("ok")
		m.update(flat, ctrl, nil)
	case flat != nil && errors.As(err, &missing):
		// The flat readings stand on their own; only the typed view is lost.
		prometheusRecordPoll("ok")
		m.log.Debug("no typed view of controller data", "error", err)
		m.update(flat, nil, nil)
		err = nil
	case errors.Is(err, stokercloud.ErrNotConnected):
		prometheusRecordPoll("not_connected")
		m.log.Warn("boiler not connected to StokerCloud")
		m.update(flat, nil, err)
	default:
		prometheusRecordPoll(pollResult(err))
		m.pollFailed(err)
	}
	return err
}

func pollResult(err error) string {
	var authErr *stokercloud.AuthenticationError
	var transportErr *stokercloud.TransportError
	switch {
	case errors.As(err, &authErr):
		return "auth_error"
	case errors.As(err, &transportErr):
		return "transport_error"
	}
	return "error"
}

func (m *BoilerManager) update(flat stokercloud.Flat, ctrl *stokercloud.Controller, pollErr error) {
	changes := ChangeBoilerUpdate
	var serial string
	var snapshot BoilerState

	m.doLocked(func() error {
		if m.state == nil {
			changes |= ChangeNewBoiler
			m.state = &BoilerState{}
		}
		m.failures = 0

		d := m.state
		d.lastSeen = time.Now()
		d.connected = pollErr == nil
		d.lastErr = pollErr
		d.controller = ctrl
		d.raw = flat
		if s, ok := flat.String("serial"); ok {
			d.serial = s
		}
		d.values = m.mergeLocked(flat)

		serial = d.serial
		snapshot = d.copy()
		return nil
	})

	prometheusRecord(&snapshot)
	m.notifyListeners(serial, changes)
}

func (m *BoilerManager) pollFailed(err error) {
	changes := ChangeNone
	var serial string
	var failures int

	m.doLocked(func() error {
		m.failures++
		failures = m.failures
		if m.state == nil {
			return nil
		}
		m.state.lastErr = err
		serial = m.state.serial
		if m.failures == MaxFailedPolls && m.state.connected {
			m.state.connected = false
			changes = ChangeBoilerGone
		}
		return nil
	})

	m.log.Error("poll failed", "error", err, "failures", failures)
	if changes != ChangeNone {
		m.log.Warn("boiler timed-out", "serial", serial)
		m.notifyListeners(serial, changes)
	}
}

// mergeLocked adds local and derived values to a copy of flat.
func (m *BoilerManager) mergeLocked(flat stokercloud.Flat) stokercloud.Flat {
	values := flat.Clone()
	for k, v := range m.internal {
		values[k] = v
	}
	if total, ok := values.Float(keyTotalConsumption); ok {
		values[keyConsumptionEnergy] = total * m.internal[keyPelletEnergy]
	}
	return values
}

// GetBoiler returns a copy of the current state, or nil before the first
// successful poll.
func (m *BoilerManager) GetBoiler() *BoilerState {
	var state *BoilerState

	m.doLocked(func() error {
		if m.state != nil {
			s := m.state.copy()
			state = &s
		}
		return nil
	})

	return state
}

// SetValue writes a number entity. Internal values are kept in memory only;
// the rest are sent to StokerCloud and the accepted value is returned.
func (m *BoilerManager) SetValue(ctx context.Context, key string, value float64) (float64, error) {
	d, ok := lookupEntity(key)
	if !ok || d.Kind != kindNumber {
		return 0, fmt.Errorf("%q is not a settable value", key)
	}
	if value < d.Min || value > d.Max {
		return 0, fmt.Errorf("%s: %v outside range [%v, %v]", key, value, d.Min, d.Max)
	}

	if !d.Internal {
		var accepted decimal.Decimal
		var err, refreshErr error
		m.doClient(func() {
			accepted, err = m.client.UpdateValue(ctx, d.Menu, d.Setting, decimal.NewFromFloat(value))
			if err != nil {
				return
			}
			// Replace the cached document so the next poll sees the write.
			_, refreshErr = m.client.Refresh(ctx)
		})
		if err != nil {
			return 0, fmt.Errorf("update %s: %w", key, err)
		}
		if refreshErr != nil {
			m.log.Warn("refresh after update failed", "key", key, "error", refreshErr)
		}
		value, _ = accepted.Float64()
	}

	var serial string
	var notify bool
	m.doLocked(func() error {
		if d.Internal {
			m.internal[key] = value
		}
		if m.state == nil {
			return nil
		}
		if !d.Internal {
			m.state.raw = m.state.raw.Clone()
			m.state.raw[key] = value
		}
		m.state.values = m.mergeLocked(m.state.raw)
		serial = m.state.serial
		notify = true
		return nil
	})

	m.log.Info("value set", "key", key, "value", value)
	if notify {
		m.notifyListeners(serial, ChangeBoilerUpdate)
	}
	return value, nil
}

func (m *BoilerManager) AddListener(ch chan BoilerChange) {
	m.doLocked(func() error {
		m.listeners = append(m.listeners, ch)
		return nil
	})
}

func (m *BoilerManager) RemoveListener(ch chan BoilerChange) {
	m.doLocked(func() error {
		for i, l := range m.listeners {
			if l == ch {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				break
			}
		}
		return nil
	})
}

func (m *BoilerManager) notifyListeners(serial string, changes BoilerChangeTypes) {
	notification := BoilerChange{Serial: serial, Changes: changes}

	var listeners []chan BoilerChange
	m.doLocked(func() error {
		listeners = append(listeners, m.listeners...)
		return nil
	})

	for _, ch := range listeners {
		select {
		case ch <- notification:
		default:
		}
	}
}

func (m *BoilerManager) doLocked(fn func() error) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return fn()
}

func (m *BoilerManager) doClient(fn func()) {
	m.clientLock.Lock()
	defer m.clientLock.Unlock()
	fn()
}

func (s *BoilerState) copy() BoilerState {
	c := *s
	c.raw = s.raw.Clone()
	c.values = s.values.Clone()
	return c
}

// Available reports whether entities should be shown as available.
func (s *BoilerState) Available() bool {
	return s.connected
}
