package notifications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	circuitThreshold = 5
	circuitCooldown  = 30 * time.Second
	maxKeysInMessage = 10
)

// Config describes an ntfy topic and the delivery budget for alerts.
type Config struct {
	BaseURL    string
	Topic      string
	Enabled    bool
	Priority   string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client posts operator alerts to ntfy with retries and a circuit breaker.
type Client struct {
	httpClient *http.Client
	cfg        Config

	mutex       sync.RWMutex
	failures    int
	lastFailure time.Time
	circuitOpen bool

	totalSent    int64
	totalFailed  int64
	totalRetries int64
}

// PartialWrite describes a sheet write that landed only partly and was not rolled back.
type PartialWrite struct {
	Operation string
	Workbook  string
	Sheet     string
	Keys      []string
	Rows      map[string]int
	Err       error
}

type NotificationError struct {
	Type       string
	StatusCode int
	Attempt    int
	Underlying error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification failed [%s] attempt %d: %v", e.Type, e.Attempt, e.Underlying)
}

func (e *NotificationError) Unwrap() error { return e.Underlying }

func (e *NotificationError) IsRetryable() bool {
	switch e.Type {
	case "network", "server", "timeout", "rate_limit":
		return true
	case "auth", "client":
		return false
	default:
		return e.StatusCode >= 500
	}
}

func NewClient(cfg Config) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cfg: cfg,
	}
}

func (c *Client) Enabled() bool {
	return c.cfg.Enabled
}

func (c *Client) SendNotification(ctx context.Context, title, message string) error {
	if !c.cfg.Enabled {
		log.Debug().Msg("Notifications disabled, skipping")
		return nil
	}

	if c.isCircuitOpen() {
		log.Warn().Msg("Circuit breaker open, skipping notification")
		return &NotificationError{
			Type:       "circuit_open",
			Underlying: errors.New("circuit breaker is open"),
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt)
			log.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying notification after delay")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			c.incrementRetries()
		}

		err := c.send(ctx, title, message, attempt+1)
		if err == nil {
			c.recordSuccess()
			return nil
		}
		lastErr = err

		var notifErr *NotificationError
		if errors.As(err, &notifErr) && !notifErr.IsRetryable() {
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Msg("Non-retryable error, giving up")
			c.recordFailure()
			return err
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", c.cfg.MaxRetries).
			Msg("Notification attempt failed")
	}

	c.recordFailure()
	return &NotificationError{
		Type:       "max_retries_exceeded",
		Attempt:    c.cfg.MaxRetries + 1,
		Underlying: lastErr,
	}
}

func (c *Client) send(ctx context.Context, title, message string, attempt int) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.cfg.BaseURL, "/"), c.cfg.Topic)

	log.Debug().
		Str("url", url).
		Int("attempt", attempt).
		Msg("Sending notification")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(message))
	if err != nil {
		return &NotificationError{Type: "client", Attempt: attempt, Underlying: err}
	}

	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
	}
	if c.cfg.Priority != "" {
		req.Header.Set("Priority", c.cfg.Priority)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NotificationError{Type: "network", Attempt: attempt, Underlying: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &NotificationError{
			Type:       categorizeHTTPError(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Attempt:    attempt,
			Underlying: fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status),
		}
	}

	log.Debug().
		Int("status_code", resp.StatusCode).
		Int("attempt", attempt).
		Msg("Notification sent successfully")
	return nil
}

// NotifyPartialWrite alerts operators that a sheet needs manual reconciliation.
// Delivery happens in the background; failures are only logged.
func (c *Client) NotifyPartialWrite(ctx context.Context, alert PartialWrite) {
	if !c.cfg.Enabled {
		return
	}

	log.Info().
		Str("operation", alert.Operation).
		Str("sheet", alert.Sheet).
		Int("keys", len(alert.Keys)).
		Msg("Sending partial write alert")

	title := fmt.Sprintf("Sheet %s left half-written", alert.Sheet)
	message := formatPartialWrite(alert)
	go func() {
		if err := c.SendNotification(ctx, title, message); err != nil {
			log.Warn().Err(err).Msg("Async notification failed")
		}
	}()
}

func formatPartialWrite(alert PartialWrite) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s on %s / %s did not complete\n", alert.Operation, alert.Workbook, alert.Sheet)
	if alert.Err != nil {
		fmt.Fprintf(&sb, "Error: %v\n", alert.Err)
	}

	keys := append([]string(nil), alert.Keys...)
	if len(keys) == 0 {
		for k := range alert.Rows {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	shown := min(len(keys), maxKeysInMessage)
	for _, k := range keys[:shown] {
		if row, ok := alert.Rows[k]; ok {
			fmt.Fprintf(&sb, "- %s (row %d)\n", k, row)
		} else {
			fmt.Fprintf(&sb, "- %s\n", k)
		}
	}
	if len(keys) > shown {
		fmt.Fprintf(&sb, "... and %d more\n", len(keys)-shown)
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

func (c *Client) isCircuitOpen() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.circuitOpen {
		return false
	}
	if time.Since(c.lastFailure) > circuitCooldown {
		c.circuitOpen = false
		c.failures = 0
		log.Info().Msg("Circuit breaker moving to half-open state")
	}
	return c.circuitOpen
}

func (c *Client) recordSuccess() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.totalSent++
	c.failures = 0
	if c.circuitOpen {
		c.circuitOpen = false
		log.Info().Msg("Circuit breaker closed after successful notification")
	}
}

func (c *Client) recordFailure() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.totalFailed++
	c.failures++
	c.lastFailure = time.Now()

	if c.failures >= circuitThreshold && !c.circuitOpen {
		c.circuitOpen = true
		log.Warn().
			Int("failures", c.failures).
			Msg("Circuit breaker opened due to consecutive failures")
	}
}

func (c *Client) incrementRetries() {
	c.mutex.Lock()
	c.totalRetries++
	c.mutex.Unlock()
}

// calculateBackoff is exponential with +/-25% jitter, capped at MaxDelay.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := float64(c.cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	jitter := rand.Float64()*0.5 - 0.25
	backoff = backoff * (1 + jitter)

	if maxBackoff := float64(c.cfg.MaxDelay); backoff > maxBackoff {
		backoff = maxBackoff
	}
	return time.Duration(backoff)
}

func categorizeHTTPError(statusCode int) string {
	switch {
	case statusCode == 401 || statusCode == 403:
		return "auth"
	case statusCode == 429:
		return "rate_limit"
	case statusCode >= 400 && statusCode < 500:
		return "client"
	case statusCode >= 500:
		return "server"
	default:
		return "unknown"
	}
}

// GetMetrics returns current notification counters.
func (c *Client) GetMetrics() (sent, failed, retries int64) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.totalSent, c.totalFailed, c.totalRetries
}
