package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) {
	return string(s), nil
}

const flatBody = `[
	{"deviceId": "dev-1", "name": "Bedroom AC", "deviceType": "AC", "model": "AS20HPL1HRA", "macAddress": "aa:bb:cc:dd:ee:01"},
	{"deviceId": "dev-2", "name": "Kitchen Fridge", "deviceType": "REF", "model": "HRF-541DM7RU", "macAddress": "aa:bb:cc:dd:ee:02"}
]`

func TestFetchDevicesFlatArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/ui/pages/devices" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Fatalf("authorization = %q", got)
		}
		_, _ = w.Write([]byte(flatBody))
	}))
	defer server.Close()

	d := New(server.URL, server.Client(), staticToken("tok-1"), time.Minute, zerolog.Nop())
	devices := d.FetchDevices(context.Background())
	if len(devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(devices))
	}
	if devices[0].ID != "dev-1" || devices[0].MAC != "aa:bb:cc:dd:ee:01" {
		t.Fatalf("descriptor = %+v", devices[0])
	}
	if devices[1].Model != "HRF-541DM7RU" {
		t.Fatalf("model = %q", devices[1].Model)
	}
}

func TestFetchDevicesNestedList(t *testing.T) {
	body := `{"data": {"devices": [
		{"id": "dev-3", "title": "Hall AC", "type": "AC", "modelName": "HSU-09HPL103", "mac": "aa:bb:cc:dd:ee:03",
		 "status": {"21": "1", "0": "22"}}
	]}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	d := New(server.URL, server.Client(), staticToken("tok"), time.Minute, zerolog.Nop())
	devices := d.FetchDevices(context.Background())
	if len(devices) != 1 {
		t.Fatalf("devices = %d, want 1", len(devices))
	}
	desc := devices[0]
	if desc.ID != "dev-3" || desc.Name != "Hall AC" || desc.Model != "HSU-09HPL103" {
		t.Fatalf("descriptor = %+v", desc)
	}
	if desc.InitialStatus["21"] != "1" {
		t.Fatalf("initial status = %v", desc.InitialStatus)
	}
}

func TestFetchDevicesPresentationTree(t *testing.T) {
	state, _ := json.Marshal(map[string]any{
		"pageData": []map[string]any{
			{
				"room": "Living room",
				"items": []map[string]any{
					{"deviceId": "dev-4", "name": "Living AC", "deviceType": "AC", "macAddress": "aa:bb:cc:dd:ee:04"},
				},
			},
		},
	})
	body, _ := json.Marshal(map[string]any{
		"data": map[string]any{
			"presentation": map[string]any{
				"layout": map[string]any{
					"scrollContainer": []map[string]any{
						{"contractName": "banner", "state": "{}"},
						{"contractName": "deviceList", "state": string(state)},
					},
				},
			},
		},
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer server.Close()

	d := New(server.URL, server.Client(), staticToken("tok"), time.Minute, zerolog.Nop())
	devices := d.FetchDevices(context.Background())
	if len(devices) != 1 || devices[0].ID != "dev-4" {
		t.Fatalf("devices = %+v", devices)
	}
}

func TestFetchDevicesRejectsIncompleteEntries(t *testing.T) {
	// The second entry has no identity field, which disqualifies the
	// whole list rather than silently dropping the entry.
	body := `[
		{"deviceId": "dev-1", "name": "Bedroom AC"},
		{"name": "Orphan"}
	]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	d := New(server.URL, server.Client(), staticToken("tok"), time.Minute, zerolog.Nop())
	if devices := d.FetchDevices(context.Background()); devices != nil {
		t.Fatalf("devices = %+v, want nil", devices)
	}
}

func TestFetchDevicesServesStaleCacheOnFailure(t *testing.T) {
	var fail atomic.Bool
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(flatBody))
	}))
	defer server.Close()

	d := New(server.URL, server.Client(), staticToken("tok"), 10*time.Millisecond, zerolog.Nop())
	if devices := d.FetchDevices(context.Background()); len(devices) != 2 {
		t.Fatalf("initial fetch: %d devices", len(devices))
	}

	// Within the TTL the cache answers without a network round trip.
	if devices := d.FetchDevices(context.Background()); len(devices) != 2 {
		t.Fatalf("cached fetch: %d devices", len(devices))
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}

	// Once stale, a failing refetch still serves the old snapshot.
	fail.Store(true)
	time.Sleep(20 * time.Millisecond)
	devices := d.FetchDevices(context.Background())
	if len(devices) != 2 {
		t.Fatalf("stale fetch: %d devices, want cached 2", len(devices))
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestFetchConfiguration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/devices/aa:bb:cc:dd:ee:01/configuration" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data": {"attributes": [
			{"name": "0", "currentValue": "23.5"},
			{"name": "21", "currentValue": "1"}
		]}}`))
	}))
	defer server.Close()

	d := New(server.URL, server.Client(), staticToken("tok"), time.Minute, zerolog.Nop())
	attrs, err := d.FetchConfiguration(context.Background(), "aa:bb:cc:dd:ee:01")
	if err != nil {
		t.Fatalf("fetch configuration: %v", err)
	}
	if len(attrs) != 2 || attrs[0].Name != "0" || attrs[0].CurrentValue != "23.5" {
		t.Fatalf("attributes = %+v", attrs)
	}
}
