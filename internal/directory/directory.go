// Package directory fetches and caches the account's device list. The
// cloud answers the list endpoint with one of several shapes; an ordered
// matcher chain extracts whichever one arrives. Fetch failures fall back
// to the last cached snapshot, even an expired one: availability beats
// freshness here.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkurtov/haierbridge/internal/device"
)

// TokenSource supplies a valid access token for each request.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Directory is the device-list client and cache.
type Directory struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	ttl        time.Duration
	log        zerolog.Logger

	mu        sync.Mutex
	cache     []device.Descriptor
	cachedAt  time.Time
	haveCache bool
}

// New builds a directory over the shared rate-limited client. A zero ttl
// defaults to one minute.
func New(baseURL string, client *http.Client, tokens TokenSource, ttl time.Duration, log zerolog.Logger) *Directory {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Directory{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		tokens:     tokens,
		ttl:        ttl,
		log:        log.With().Str("component", "directory").Logger(),
	}
}

// FetchDevices returns the account's devices. It serves from cache while
// fresh, refetches when stale, and never fails: on error the previous
// snapshot (if any) is returned, else an empty list.
func (d *Directory) FetchDevices(ctx context.Context) []device.Descriptor {
	d.mu.Lock()
	if d.haveCache && time.Since(d.cachedAt) < d.ttl {
		cached := append([]device.Descriptor(nil), d.cache...)
		d.mu.Unlock()
		return cached
	}
	d.mu.Unlock()

	descs, err := d.fetch(ctx)
	if err != nil {
		fetchFailureTotal.Inc()
		d.log.Warn().Err(err).Msg("device list fetch failed, serving cache")
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.haveCache {
			return append([]device.Descriptor(nil), d.cache...)
		}
		return nil
	}

	d.mu.Lock()
	d.cache = descs
	d.cachedAt = time.Now()
	d.haveCache = true
	d.mu.Unlock()

	deviceCount.Set(float64(len(descs)))
	return append([]device.Descriptor(nil), descs...)
}

func (d *Directory) fetch(ctx context.Context) ([]device.Descriptor, error) {
	data, err := d.get(ctx, "/v2/ui/pages/devices")
	if err != nil {
		return nil, err
	}

	for _, matcher := range shapeMatchers {
		if descs, ok := matcher.match(data); ok {
			d.log.Debug().Str("shape", matcher.name).Int("devices", len(descs)).Msg("device list parsed")
			return descs, nil
		}
	}
	return nil, fmt.Errorf("device list response matched no known shape")
}

// FetchConfiguration returns the attribute array for a single device by
// its network address.
func (d *Directory) FetchConfiguration(ctx context.Context, mac string) ([]device.Attribute, error) {
	data, err := d.get(ctx, "/v1/devices/"+mac+"/configuration")
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data struct {
			Attributes []device.Attribute `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse device configuration: %w", err)
	}
	return parsed.Data.Attributes, nil
}

func (d *Directory) get(ctx context.Context, path string) ([]byte, error) {
	token, err := d.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return data, nil
}
