package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Probe derives connectivity from periodic HEAD requests to a URL.
// A 2xx or 3xx response counts as online.
type Probe struct {
	*Manual

	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
}

func NewProbe(url string, interval, timeout time.Duration, initial bool, logger *slog.Logger) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{
		Manual:   NewManual(initial),
		url:      url,
		interval: interval,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Check issues one probe and updates the state.
func (p *Probe) Check(ctx context.Context) bool {
	online := p.reachable(ctx)
	if p.Set(online) {
		p.logger.Info("connectivity changed", "online", online, "probe", p.url)
	}
	return online
}

func (p *Probe) reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.logger.Warn("probe request invalid", "url", p.url, "err", err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", "url", p.url, "err", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

// Run probes immediately and then every interval until ctx is done.
func (p *Probe) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
