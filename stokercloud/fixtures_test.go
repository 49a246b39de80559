package stokercloud

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

const sampleStatus = `{
  "notconnected": 0,
  "serial": "12345",
  "miscdata": {
    "alarm": 0,
    "running": 1,
    "output": "12.4",
    "outputpct": "78",
    "clock": {"value": "12:34"},
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
  "boilerdata": [
    {"id": "5", "value": "15321"}
  ],
  "weatherdata": [
    {"id": "1", "value": "Aarhus"},
    {"id": "2", "value": "4.5"}
  ],
  "infomessages": ["13"]
}`

const offlineStatus = `{"notconnected": 1, "serial": "12345"}`

// fakeService is a minimal StokerCloud stand-in. It issues tokens on login
// and serves status and update requests for a valid token.
type fakeService struct {
	t *testing.T

	mu          sync.Mutex
	status      string
	logins      int
	statusCalls int
	updateCalls int
	lastUpdate  url.Values
	lastLogin   url.Values

	// issued is the next token handed out on login; empty means the login
	// response omits the token.
	issued string
	// rejectTokens makes every authenticated request fail with 401.
	rejectTokens bool
	valid        map[string]bool
}

func newFakeService(t *testing.T) (*fakeService, *httptest.Server) {
	t.Helper()

	f := &fakeService{
		t:      t,
		status: sampleStatus,
		issued: "tok-1",
		valid:  map[string]bool{},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeService) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query()
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/" + loginPath:
		f.logins++
		f.lastLogin = q
		if q.Get("user") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if f.issued == "" {
			fmt.Fprint(w, `{"credentials":"readonly"}`)
			return
		}
		f.valid[f.issued] = true
		fmt.Fprintf(w, `{"token":%q,"credentials":"readonly"}`, f.issued)
		return
	}

	if f.rejectTokens || !f.valid[q.Get("token")] {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch r.URL.Path {
	case "/" + controllerDataPath:
		f.statusCalls++
		fmt.Fprint(w, f.status)
	case "/" + updateValuePath:
		f.updateCalls++
		f.lastUpdate = q
		fmt.Fprintf(w, `{"status":0,"value":%q}`, q.Get("value"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeService) counts() (logins, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, f.statusCalls
}

// fakeClock is a manually advanced clock for cache tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) (*Client, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithBaseURL(srv.URL + "/"), WithHTTPClient(srv.Client())}, opts...)
	c, err := NewClient("boiler-user", opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	c.now = clock.Now
	return c, clock
}
