package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

const sendGridAPIBase = "https://api.sendgrid.com"

// RetryPolicy задаёт повторные попытки при 429/5xx.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// SendGridConfig описывает подключение к SendGrid v3 Mail Send API.
type SendGridConfig struct {
	APIKey      string
	BaseURL     string
	FromAddress string
	FromName    string
	Retry       RetryPolicy
}

// SendGridProvider отправляет письма через SendGrid с circuit breaker и повторами.
type SendGridProvider struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	cfg     SendGridConfig
	sleepFn func(time.Duration)
}

// NewSendGridProvider создаёт провайдера SendGrid.
func NewSendGridProvider(httpClient *http.Client, cfg SendGridConfig) *SendGridProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = sendGridAPIBase
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Retry.MinWait <= 0 {
		cfg.Retry.MinWait = 500 * time.Millisecond
	}
	if cfg.Retry.MaxWait <= 0 {
		cfg.Retry.MaxWait = 5 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "sendgrid",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &SendGridProvider{
		client:  httpClient,
		breaker: breaker,
		cfg:     cfg,
		sleepFn: time.Sleep,
	}
}

// Name возвращает имя провайдера.
func (p *SendGridProvider) Name() string {
	return ProviderSendGrid
}

type sendGridPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Deliver отправляет письмо. SendGrid отвечает 202 Accepted при успехе.
func (p *SendGridProvider) Deliver(ctx context.Context, msg *Message) error {
	payload := sendGridPayload{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: msg.To, Name: msg.ToName}}}},
		From:             sendGridAddress{Email: p.cfg.FromAddress, Name: p.cfg.FromName},
		Subject:          msg.Subject,
		Content: []sendGridContent{
			{Type: "text/plain", Value: msg.Text},
			{Type: "text/html", Value: msg.HTML},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal sendgrid payload: %w", err)
	}

	resp, err := p.do(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("sendgrid rejected message with status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
}

// do выполняет запрос через circuit breaker, повторяя при 429 и 5xx.
func (p *SendGridProvider) do(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error
	attempts := 1 + p.cfg.Retry.MaxRetries

	for attempt := 0; attempt < attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create sendgrid request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

		resp, err := p.breaker.Execute(func() (*http.Response, error) {
			r, doErr := p.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("sendgrid returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("sendgrid circuit breaker is open: %w", err)
		}

		var wait time.Duration
		if resp != nil {
			wait = p.backoff(attempt, resp.Header.Get("Retry-After"))
			resp.Body.Close()
		} else {
			wait = p.backoff(attempt, "")
		}

		if attempt < attempts-1 {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.sleepFn(wait)
		}
	}

	return nil, fmt.Errorf("sendgrid request failed after %d attempt(s): %w", attempts, lastErr)
}

// backoff учитывает Retry-After, иначе растёт экспоненциально в пределах [MinWait, MaxWait].
func (p *SendGridProvider) backoff(attempt int, retryAfter string) time.Duration {
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		wait := time.Duration(seconds) * time.Second
		if wait > p.cfg.Retry.MaxWait {
			wait = p.cfg.Retry.MaxWait
		}
		return wait
	}

	wait := time.Duration(float64(p.cfg.Retry.MinWait) * math.Pow(2, float64(attempt)))
	if wait > p.cfg.Retry.MaxWait {
		wait = p.cfg.Retry.MaxWait
	}
	return wait
}
