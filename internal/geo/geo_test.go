package geo_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/sherox/internal/event"
	"github.com/gyaneshwarpardhi/sherox/internal/geo"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestResolve_Degrades(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	tests := []struct {
		name    string
		locator geo.Locator
	}{
		{"permission denied", geo.Func(func(context.Context) (event.Location, error) {
			return event.Location{}, geo.ErrPermissionDenied
		})},
		{"unavailable", geo.None{}},
		{"hangs past timeout", geo.Func(func(context.Context) (event.Location, error) {
			<-block
			return event.At(1, 1), nil
		})},
		{"partial fix", geo.Func(func(context.Context) (event.Location, error) {
			lat := 1.0
			return event.Location{Lat: &lat}, nil
		})},
		{"nil locator", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			loc := geo.Resolve(context.Background(), tt.locator, 50*time.Millisecond, quiet())
			if loc.Lat != nil || loc.Lng != nil {
				t.Errorf("expected unknown location, got %+v", loc)
			}
			if time.Since(start) > time.Second {
				t.Errorf("Resolve did not honor its timeout")
			}
		})
	}
}

func TestResolve_Static(t *testing.T) {
	loc := geo.Resolve(context.Background(), geo.Static{Lat: 28.6139, Lng: 77.209}, time.Second, quiet())
	if !loc.Known() || *loc.Lat != 28.6139 || *loc.Lng != 77.209 {
		t.Errorf("loc = %+v", loc)
	}
}

func TestHTTP_Locate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			io.WriteString(w, `{"status":"success","lat":19.076,"lon":72.8777}`)
		case "/fail":
			io.WriteString(w, `{"status":"fail","message":"reserved range"}`)
		case "/denied":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	loc, err := geo.HTTP{URL: srv.URL + "/ok"}.Locate(ctx)
	if err != nil || *loc.Lat != 19.076 || *loc.Lng != 72.8777 {
		t.Errorf("ok: loc=%+v err=%v", loc, err)
	}
	if _, err := (geo.HTTP{URL: srv.URL + "/fail"}).Locate(ctx); !errors.Is(err, geo.ErrUnavailable) {
		t.Errorf("fail: err = %v", err)
	}
	if _, err := (geo.HTTP{URL: srv.URL + "/denied"}).Locate(ctx); !errors.Is(err, geo.ErrPermissionDenied) {
		t.Errorf("denied: err = %v", err)
	}
	if _, err := (geo.HTTP{URL: srv.URL + "/boom"}).Locate(ctx); !errors.Is(err, geo.ErrUnavailable) {
		t.Errorf("5xx: err = %v", err)
	}
}
