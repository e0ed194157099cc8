package directory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/gray-logic-upnp/internal/eventloop"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/ssdp"
)

const nasDescription = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <device>
    <deviceType>urn:schemas-upnp-org:device:MediaServer:1</deviceType>
    <friendlyName>NAS</friendlyName>
    <UDN>uuid:nas</UDN>
    <iconList>
      <icon><mimetype>image/png</mimetype><width>120</width><height>120</height><depth>24</depth><url>/icons/large.png</url></icon>
      <icon><mimetype>image/png</mimetype><width>48</width><height>48</height><depth>24</depth><url>small.png</url></icon>
    </iconList>
  </device>
</root>`

const nasLocation = "http://192.0.2.5:8080/dev/desc.xml"

type fakeSearcher struct {
	mu       sync.Mutex
	searches []string
}

func (s *fakeSearcher) Search(target string, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches = append(s.searches, target)
}

type fakeFetcher struct {
	mu    sync.Mutex
	docs  map[string]string
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, location string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	doc, ok := f.docs[location]
	if !ok {
		return nil, ErrFetch
	}
	return []byte(doc), nil
}

func (f *fakeFetcher) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingListener struct {
	added   []string
	removed []string
}

func (l *recordingListener) Added(d Device)   { l.added = append(l.added, d.UDN) }
func (l *recordingListener) Removed(d Device) { l.removed = append(l.removed, d.UDN) }

func newTestDirectory(t *testing.T, docs map[string]string) (*Directory, *eventloop.Loop, *eventloop.ManualClock, *fakeFetcher, *recordingListener) {
	t.Helper()
	clock := eventloop.NewManualClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	loop := eventloop.New(clock)
	fetcher := &fakeFetcher{docs: docs}
	d := New(loop, &fakeSearcher{}, fetcher, Config{})
	listener := &recordingListener{}
	d.AddListener(listener)
	t.Cleanup(d.Stop)
	return d, loop, clock, fetcher, listener
}

func waitFor(t *testing.T, loop *eventloop.Loop, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		loop.Drain()
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func rootAlive(maxAge time.Duration) ssdp.Alive {
	return ssdp.Alive{
		Location: nasLocation,
		NT:       "upnp:rootdevice",
		MaxAge:   maxAge,
		Server:   "Linux/5.0 UPnP/1.0 nas/1.0",
		USN:      "uuid:nas::upnp:rootdevice",
	}
}

func TestAliveFetchesDescription(t *testing.T) {
	d, loop, clock, fetcher, listener := newTestDirectory(t, map[string]string{nasLocation: nasDescription})

	d.OnAlive(rootAlive(1800 * time.Second))
	if len(d.Devices()) != 0 {
		t.Error("device listed before its description was read")
	}
	waitFor(t, loop, func() bool { return len(listener.added) == 1 })

	want := []Device{{
		UDN:          "uuid:nas",
		USN:          "uuid:nas::upnp:rootdevice",
		Location:     nasLocation,
		Server:       "Linux/5.0 UPnP/1.0 nas/1.0",
		FriendlyName: "NAS",
		DeviceType:   "urn:schemas-upnp-org:device:MediaServer:1",
		Icons: []Icon{
			{Width: 120, Height: 120, URL: "http://192.0.2.5:8080/icons/large.png"},
			{Width: 48, Height: 48, URL: "http://192.0.2.5:8080/dev/small.png"},
		},
		ValidUntil: clock.Now().Add(1800 * time.Second),
	}}
	if diff := cmp.Diff(want, d.Devices()); diff != "" {
		t.Errorf("Devices() mismatch (-want +got):\n%s", diff)
	}

	// Repeated announcements do not fetch again.
	d.OnAlive(rootAlive(1800 * time.Second))
	loop.Drain()
	if got := fetcher.fetchCalls(); got != 1 {
		t.Errorf("fetched %d times, want 1", got)
	}
}

func TestAliveForOtherTargetsIsIgnored(t *testing.T) {
	d, loop, _, fetcher, _ := newTestDirectory(t, map[string]string{nasLocation: nasDescription})

	a := rootAlive(time.Hour)
	a.NT = "urn:schemas-upnp-org:device:MediaServer:1"
	a.USN = "uuid:nas::" + a.NT
	d.OnAlive(a)
	loop.Drain()

	if fetcher.fetchCalls() != 0 || len(d.entries) != 0 {
		t.Error("non-root announcement created an entry")
	}
}

func TestFetchFailureDropsEntry(t *testing.T) {
	d, loop, _, fetcher, listener := newTestDirectory(t, nil)

	d.OnAlive(rootAlive(time.Hour))
	waitFor(t, loop, func() bool { return len(d.entries) == 0 })

	if fetcher.fetchCalls() != 1 {
		t.Errorf("fetched %d times", fetcher.fetchCalls())
	}
	if len(listener.added) != 0 || len(listener.removed) != 0 {
		t.Errorf("listener called for a device that never became ready: %+v", listener)
	}
}

func TestExpiryFollowsLatestMaxAge(t *testing.T) {
	d, loop, clock, _, listener := newTestDirectory(t, map[string]string{nasLocation: nasDescription})

	d.OnAlive(rootAlive(100 * time.Second))
	waitFor(t, loop, func() bool { return len(listener.added) == 1 })

	clock.Advance(60 * time.Second)
	loop.Drain()
	d.OnAlive(rootAlive(100 * time.Second))

	clock.Advance(60 * time.Second)
	loop.Drain()
	if len(d.Devices()) != 1 {
		t.Fatal("device expired despite a fresh announcement")
	}

	clock.Advance(40 * time.Second)
	loop.Drain()
	if len(d.Devices()) != 0 {
		t.Fatal("device still listed after max-age")
	}
	if diff := cmp.Diff([]string{"uuid:nas"}, listener.removed); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}
}

func TestByeByeRemovesDevice(t *testing.T) {
	d, loop, _, _, listener := newTestDirectory(t, map[string]string{nasLocation: nasDescription})

	d.OnAlive(rootAlive(time.Hour))
	waitFor(t, loop, func() bool { return len(listener.added) == 1 })

	d.OnByeBye(ssdp.ByeBye{USN: "uuid:nas::urn:schemas-upnp-org:service:ContentDirectory:1"})
	if len(d.Devices()) != 0 || len(listener.removed) != 1 {
		t.Errorf("byebye did not remove the device: %+v", listener)
	}

	d.OnByeBye(ssdp.ByeBye{USN: "uuid:nas::upnp:rootdevice"})
	if len(listener.removed) != 1 {
		t.Error("second byebye reported a removal")
	}
}

func TestStartSearches(t *testing.T) {
	clock := eventloop.NewManualClock(time.Now())
	loop := eventloop.New(clock)
	searcher := &fakeSearcher{}
	d := New(loop, searcher, &fakeFetcher{}, Config{Refresh: "@every 1h"})

	if err := d.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop()
	loop.Drain()

	if diff := cmp.Diff([]string{"upnp:rootdevice"}, searcher.searches); diff != "" {
		t.Errorf("searches mismatch (-want +got):\n%s", diff)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	d := New(eventloop.New(nil), &fakeSearcher{}, &fakeFetcher{}, Config{Refresh: "every now and then"})
	if err := d.Start(); !errors.Is(err, ErrSchedule) {
		t.Errorf("Start() error = %v, want ErrSchedule", err)
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/desc.xml" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(nasDescription))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second)
	body, err := f.Fetch(context.Background(), srv.URL+"/desc.xml")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(body) != nasDescription {
		t.Errorf("body = %q", body)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.xml"); !errors.Is(err, ErrFetch) {
		t.Errorf("Fetch(missing) error = %v, want ErrFetch", err)
	}
}
