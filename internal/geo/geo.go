package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gyaneshwarpardhi/sherox/internal/event"
)

var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrUnavailable      = errors.New("location unavailable")
	ErrTimeout          = errors.New("location timed out")
)

// Locator returns a one-shot position fix.
type Locator interface {
	Locate(ctx context.Context) (event.Location, error)
}

// Func adapts a plain function to Locator.
type Func func(ctx context.Context) (event.Location, error)

func (f Func) Locate(ctx context.Context) (event.Location, error) { return f(ctx) }

// Static always reports a fixed position, e.g. a mounted in-vehicle unit.
type Static struct {
	Lat, Lng float64
}

func (s Static) Locate(context.Context) (event.Location, error) {
	return event.At(s.Lat, s.Lng), nil
}

// None never has a position.
type None struct{}

func (None) Locate(context.Context) (event.Location, error) {
	return event.UnknownLocation(), ErrUnavailable
}

// HTTP queries a JSON IP-geolocation endpoint that answers with
// {"lat": .., "lon": ..}.
type HTTP struct {
	URL    string
	Client *http.Client
}

type httpFix struct {
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	Status string   `json:"status"`
}

func (h HTTP) Locate(ctx context.Context) (event.Location, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return event.UnknownLocation(), fmt.Errorf("geolocation request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return event.UnknownLocation(), ErrTimeout
		}
		return event.UnknownLocation(), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return event.UnknownLocation(), ErrPermissionDenied
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return event.UnknownLocation(), fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var fix httpFix
	if err := json.NewDecoder(resp.Body).Decode(&fix); err != nil {
		return event.UnknownLocation(), fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if fix.Status == "fail" || fix.Lat == nil || fix.Lon == nil {
		return event.UnknownLocation(), ErrUnavailable
	}
	return event.At(*fix.Lat, *fix.Lon), nil
}

// Resolve asks l for a fix bounded by timeout. Every failure degrades to
// the unknown location with a warning; it never returns an error.
func Resolve(ctx context.Context, l Locator, timeout time.Duration, logger *slog.Logger) event.Location {
	if l == nil {
		return event.UnknownLocation()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		loc event.Location
		err error
	}
	ch := make(chan result, 1)
	go func() {
		loc, err := l.Locate(ctx)
		ch <- result{loc, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		r = result{err: ErrTimeout}
	}
	if r.err == nil && !r.loc.Known() {
		r.err = ErrUnavailable
	}
	if r.err != nil {
		logger.Warn("location unavailable, sending without it", "err", r.err)
		return event.UnknownLocation()
	}
	return r.loc
}
