package transmit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/sherox/internal/config"
	"github.com/gyaneshwarpardhi/sherox/internal/event"
)

const maxResponseBody = 64 << 10

// HTTPSOS posts the alert to the backend endpoint that fans it out to the
// user's trusted contacts.
type HTTPSOS struct {
	url       string
	apiKey    string
	userEmail string
	client    *http.Client
}

type sosRequest struct {
	UserEmail   string `json:"user_email"`
	Message     string `json:"message"`
	PlateNumber string `json:"plate_number"`
}

type sosResponse struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewHTTPSOS(cfg config.SOSHTTPConf, userEmail string) *HTTPSOS {
	to := cfg.Timeout
	if to == 0 {
		to = 10 * time.Second
	}
	return &HTTPSOS{
		url:       cfg.URL,
		apiKey:    cfg.APIKey,
		userEmail: userEmail,
		client:    &http.Client{Timeout: to},
	}
}

func (h *HTTPSOS) Name() string { return "sos_http" }

func (h *HTTPSOS) Send(ctx context.Context, ev event.EmergencyEvent) error {
	body, err := json.Marshal(sosRequest{
		UserEmail:   h.userEmail,
		Message:     ev.Message(),
		PlateNumber: ev.PlateNumber,
	})
	if err != nil {
		return &DeliveryError{Transmitter: h.Name(), Permanent: true, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Transmitter: h.Name(), Permanent: true, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", ev.Key)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return &DeliveryError{Transmitter: h.Name(), Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode/100 != 2 {
		return &DeliveryError{
			Transmitter: h.Name(),
			StatusCode:  resp.StatusCode,
			Permanent:   permanentStatus(resp.StatusCode),
			Err:         errors.New(describe(raw, resp.Status)),
		}
	}

	// A 2xx can still carry an application-level refusal.
	var out sosResponse
	if len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &out) == nil {
		if out.Error != "" || (out.Success != nil && !*out.Success) {
			return &DeliveryError{
				Transmitter: h.Name(),
				StatusCode:  resp.StatusCode,
				Permanent:   true,
				Err:         errors.New(describe(raw, "rejected")),
			}
		}
	}
	return nil
}

func permanentStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}

func describe(raw []byte, fallback string) string {
	var out sosResponse
	if json.Unmarshal(raw, &out) == nil {
		if out.Error != "" {
			return out.Error
		}
		if out.Message != "" {
			return out.Message
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" && len(s) <= 200 {
		return s
	}
	return fallback
}
