package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shopspring/decimal"

	"github.com/netleapio/stokercloud-controller/stokercloud"
)

const testStatus = `{
  "notconnected": 0,
  "serial": "12345",
  "miscdata": {
    "alarm": 0,
    "running": 1,
    "output": "12.4",
    "outputpct": "78",
    "state": {"value": "state_5"}
  },
  "frontdata": [
    {"id": "hoppercontent", "value": "120"},
    {"id": "boilertemp", "value": "65.3"},
    {"id": "-wantedboilertemp", "value": "70"},
    {"id": "dhw", "value": "48.2"},
    {"id": "dhwwanted", "value": "50"}
  ],
  "hopperdata": [
    {"id": "1", "value": "0"},
    {"id": "2", "value": "0"},
    {"id": "4", "value": "5123.5"},
    {"id": "3", "value": "14.2"}
  ],
  "infomessages": ["13"]
}`

const testOffline = `{"notconnected": 1, "serial": "12345"}`

// fakeBoilerClient serves a fixed document, or err when set. After
// holdCache it serves a cached copy that only Refresh replaces.
type fakeBoilerClient struct {
	mu        sync.Mutex
	doc       stokercloud.Document
	cached    *stokercloud.Document
	err       error
	refreshes int
	updates   int
	lastMenu  string
	lastName  string
	lastValue decimal.Decimal
}

func newFakeBoilerClient(t *testing.T, status string) *fakeBoilerClient {
	t.Helper()
	f := &fakeBoilerClient{}
	f.setStatus(t, status)
	return f
}

func (f *fakeBoilerClient) setStatus(t *testing.T, status string) {
	t.Helper()
	doc, err := stokercloud.ParseDocument([]byte(status))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	f.mu.Lock()
	f.doc = doc
	f.mu.Unlock()
}

func (f *fakeBoilerClient) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeBoilerClient) holdCache() {
	f.mu.Lock()
	doc := f.doc
	f.cached = &doc
	f.mu.Unlock()
}

func (f *fakeBoilerClient) served() stokercloud.Document {
	if f.cached != nil {
		return *f.cached
	}
	return f.doc
}

func (f *fakeBoilerClient) StatusFlat(ctx context.Context) (stokercloud.Flat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.served().Flatten(), nil
}

func (f *fakeBoilerClient) Status(ctx context.Context) (*stokercloud.Controller, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return stokercloud.NewController(f.served())
}

func (f *fakeBoilerClient) Refresh(ctx context.Context) (stokercloud.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.err != nil {
		return stokercloud.Document{}, f.err
	}
	if f.cached != nil {
		doc := f.doc
		f.cached = &doc
	}
	return f.doc, nil
}

func (f *fakeBoilerClient) UpdateValue(ctx context.Context, menu, name string, value decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.lastMenu, f.lastName, f.lastValue = menu, name, value
	return value, nil
}

func newTestManager(t *testing.T, status string) (*BoilerManager, *fakeBoilerClient) {
	t.Helper()
	client := newFakeBoilerClient(t, status)
	return NewBoilerManager(client, time.Minute, hclog.NewNullLogger()), client
}

func nextChange(t *testing.T, ch chan BoilerChange) BoilerChange {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}
	return BoilerChange{}
}

func TestPollUpdatesState(t *testing.T) {
	m, _ := newTestManager(t, testStatus)
	ch := make(chan BoilerChange, 10)
	m.AddListener(ch)

	if m.GetBoiler() != nil {
		t.Fatal("GetBoiler() before first poll should be nil")
	}
	if err := m.Poll(context.Background(), false); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	change := nextChange(t, ch)
	if change.Changes&ChangeNewBoiler == 0 || change.Serial != "12345" {
		t.Errorf("change = %+v, want new boiler 12345", change)
	}

	d := m.GetBoiler()
	if !d.Available() {
		t.Error("boiler should be available")
	}
	if got, _ := d.values.Float("frontdata_1_value"); got != 65.3 {
		t.Errorf("boiler temperature = %v, want 65.3", got)
	}
	if got := d.values[keyPelletEnergy]; got != 5.0 {
		t.Errorf("pellet energy = %v, want default 5", got)
	}
	if got := d.values[keyConsumptionEnergy]; got != 5123.5*5.0 {
		t.Errorf("consumption energy = %v, want %v", got, 5123.5*5.0)
	}
	if _, ok := d.raw[keyPelletEnergy]; ok {
		t.Error("internal values must not leak into the raw document")
	}

	m.Poll(context.Background(), false)
	if change := nextChange(t, ch); change.Changes != ChangeBoilerUpdate {
		t.Errorf("second change = %v, want update only", change.Changes)
	}
}

func TestPollNotConnected(t *testing.T) {
	m, _ := newTestManager(t, testOffline)

	err := m.Poll(context.Background(), false)
	if !errors.Is(err, stokercloud.ErrNotConnected) {
		t.Fatalf("Poll() error = %v, want ErrNotConnected", err)
	}

	d := m.GetBoiler()
	if d == nil {
		t.Fatal("not-connected boiler should still be tracked")
	}
	if d.Available() {
		t.Error("not-connected boiler should be unavailable")
	}
	if d.serial != "12345" {
		t.Errorf("serial = %q", d.serial)
	}
}

func TestPollWithoutConnectionFlag(t *testing.T) {
	status := `{"serial":"1","frontdata":[{"id":"hoppercontent","value":"80"},{"id":"boilertemp","value":"61.5"}]}`
	m, _ := newTestManager(t, status)

	if err := m.Poll(context.Background(), false); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	d := m.GetBoiler()
	if d == nil {
		t.Fatal("readings without a notconnected field should still be tracked")
	}
	if !d.Available() || d.controller != nil {
		t.Errorf("available = %v, controller = %v; want available without typed view", d.Available(), d.controller)
	}
	if v, _ := d.values.Float("frontdata_1_value"); v != 61.5 {
		t.Errorf("boiler temperature = %v, want 61.5", v)
	}
}

func TestPollFailuresMarkGone(t *testing.T) {
	m, client := newTestManager(t, testStatus)
	ctx := context.Background()

	if err := m.Poll(ctx, false); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	ch := make(chan BoilerChange, 10)
	m.AddListener(ch)

	client.setErr(&stokercloud.TransportError{Op: "status", Err: errors.New("connection refused")})
	for i := 1; i < MaxFailedPolls; i++ {
		m.Poll(ctx, false)
		if !m.GetBoiler().Available() {
			t.Fatalf("unavailable after %d failures", i)
		}
	}
	select {
	case c := <-ch:
		t.Fatalf("unexpected change %+v before the failure limit", c)
	default:
	}

	m.Poll(ctx, false)
	if m.GetBoiler().Available() {
		t.Fatal("still available after MaxFailedPolls failures")
	}
	if change := nextChange(t, ch); change.Changes != ChangeBoilerGone {
		t.Errorf("change = %v, want gone", change.Changes)
	}

	client.setErr(nil)
	if err := m.Poll(ctx, false); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if !m.GetBoiler().Available() {
		t.Error("boiler should recover on the next good poll")
	}
}

func TestPollForceRefreshes(t *testing.T) {
	m, client := newTestManager(t, testStatus)

	m.Poll(context.Background(), false)
	m.Poll(context.Background(), true)

	if client.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", client.refreshes)
	}
}

func TestRequestRefreshRateLimited(t *testing.T) {
	m, _ := newTestManager(t, testStatus)

	if !m.RequestRefresh() {
		t.Fatal("first RequestRefresh() should be allowed")
	}
	if m.RequestRefresh() {
		t.Error("second RequestRefresh() should be rate limited")
	}
}

func TestSetValueInternal(t *testing.T) {
	m, client := newTestManager(t, testStatus)
	m.Poll(context.Background(), false)

	pellet := 4.2
	got, err := m.SetValue(context.Background(), keyPelletEnergy, pellet)
	if err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if got != pellet {
		t.Errorf("SetValue() = %v, want 4.2", got)
	}
	if client.updates != 0 {
		t.Error("internal values must not be sent to StokerCloud")
	}

	d := m.GetBoiler()
	total := 5123.5
	if v := d.values[keyConsumptionEnergy]; v != total*pellet {
		t.Errorf("consumption energy = %v, want %v", v, total*pellet)
	}
}

func TestSetValueRemote(t *testing.T) {
	m, client := newTestManager(t, testStatus)
	m.Poll(context.Background(), false)

	got, err := m.SetValue(context.Background(), "frontdata_0_value", 100)
	if err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if got != 100 {
		t.Errorf("SetValue() = %v, want 100", got)
	}
	if client.updates != 1 || client.lastMenu != "hopper.content" || client.lastName != "hopper.content" {
		t.Errorf("update = %d %q %q", client.updates, client.lastMenu, client.lastName)
	}
	if !client.lastValue.Equal(decimal.NewFromInt(100)) {
		t.Errorf("sent value = %s, want 100", client.lastValue)
	}
	if v, _ := m.GetBoiler().values.Float("frontdata_0_value"); v != 100 {
		t.Errorf("hopper content = %v, want 100", v)
	}
}

func TestSetValueRefreshesCache(t *testing.T) {
	m, client := newTestManager(t, testStatus)
	ctx := context.Background()
	m.Poll(ctx, false)
	client.holdCache()

	// Use up the on-demand refresh allowance.
	m.RequestRefresh()

	for _, v := range []float64{140, 150} {
		service := strings.Replace(testStatus, `"value": "120"`, fmt.Sprintf(`"value": "%v"`, v), 1)
		client.setStatus(t, service)
		if _, err := m.SetValue(ctx, "frontdata_0_value", v); err != nil {
			t.Fatalf("SetValue(%v) error = %v", v, err)
		}
	}
	if client.refreshes != 2 {
		t.Errorf("refreshes = %d, want one per write", client.refreshes)
	}

	if err := m.Poll(ctx, false); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if v, _ := m.GetBoiler().values.Float("frontdata_0_value"); v != 150 {
		t.Errorf("hopper content after poll = %v, want 150", v)
	}
}

func TestSetValueRejects(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value float64
	}{
		{"unknown key", "nope", 1},
		{"sensor", "frontdata_1_value", 1},
		{"above max", "frontdata_0_value", 251},
		{"below min", keyPelletEnergy, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, client := newTestManager(t, testStatus)
			if _, err := m.SetValue(context.Background(), tt.key, tt.value); err == nil {
				t.Error("SetValue() should fail")
			}
			if client.updates != 0 {
				t.Error("rejected value was sent")
			}
		})
	}
}

func TestRemoveListener(t *testing.T) {
	m, _ := newTestManager(t, testStatus)
	ch := make(chan BoilerChange, 1)
	m.AddListener(ch)
	m.RemoveListener(ch)

	m.Poll(context.Background(), false)
	select {
	case c := <-ch:
		t.Errorf("removed listener got %+v", c)
	default:
	}
}
