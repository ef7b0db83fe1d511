package alertmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/internal/core/ports"
)

const (
	serviceName = "marketd"
	severity    = "info"
	alertsPath  = "/api/v2/alerts"

	maxRetries = 5
)

type Alert struct {
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
}

type service struct {
	url        string
	httpClient *http.Client
}

// NewService returns a publisher that forwards every event as an alert to the given
// AlertManager instance.
func NewService(alertManagerURL string) (ports.EventPublisher, error) {
	if len(alertManagerURL) <= 0 {
		return nil, fmt.Errorf("missing alert manager url")
	}
	url := strings.TrimSuffix(alertManagerURL, "/")
	if !strings.HasSuffix(url, alertsPath) {
		url += alertsPath
	}
	return &service{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (s *service) Publish(ctx context.Context, topic ports.Topic, message any) error {
	labels := map[string]string{
		"alertname": string(topic),
		"service":   serviceName,
		"severity":  severity,
	}

	desc := ""
	annotations := map[string]string{}
	switch m := message.(type) {
	case domain.MarketEvent:
		annotations["firing_title"] = fmt.Sprintf("%s %s", eventIcon(m.Type), topic)
		desc = formatMarketEvent(m)
		labels["market_id"] = m.MarketId
		labels["event"] = string(m.Type)
	default:
		annotations["firing_title"] = fmt.Sprintf("🔔 %s", topic)
		desc = formatGenericAlert(map[string]any{"event": message})
	}

	annotations["description"] = desc
	alert := Alert{
		Labels:      labels,
		Annotations: annotations,
		StartsAt:    time.Now(),
	}

	if err := s.sendAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to send alert to AlertManager: %w", err)
	}

	return nil
}

func (s *service) Close() {
	s.httpClient.CloseIdleConnections()
}

func (s *service) sendAlert(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal([]Alert{alert})
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	baseDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", s.url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if attempt < maxRetries-1 {
				// 100ms, 200ms, 400ms, 800ms
				delay := baseDelay * time.Duration(1<<uint(attempt))

				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return fmt.Errorf("failed to send alert after %d attempts: %w", maxRetries, err)
		}
		_ = resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		// Only server errors are worth a retry.
		if resp.StatusCode >= 500 && attempt < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<uint(attempt))

			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		return fmt.Errorf(
			"failed to send alert to AlertManager with status %d after %d attempts",
			resp.StatusCode, attempt+1,
		)
	}

	return fmt.Errorf("failed to send alert after %d attempts", maxRetries)
}

func eventIcon(eventType domain.EventType) string {
	switch eventType {
	case domain.EventMarketInitialized:
		return "🆕"
	case domain.EventMarketResolved:
		return "🏁"
	case domain.EventMarketExpired:
		return "⏰"
	case domain.EventWinningsRedeemed, domain.EventProfitsClaimed:
		return "💰"
	default:
		return "🔄"
	}
}

func formatMarketEvent(event domain.MarketEvent) string {
	lines := make([]string, 0)
	lines = append(lines, fmt.Sprintf("*Market:* `%s`", event.MarketId))
	if len(event.Owner) > 0 {
		lines = append(lines, fmt.Sprintf("• Owner: `%s`", event.Owner))
	}
	if event.Amount > 0 {
		lines = append(lines, fmt.Sprintf("• Amount: %s", formatAmount(event.Amount)))
	}
	if len(event.Winner) > 0 {
		lines = append(lines, fmt.Sprintf("• Winner: `%s`", event.Winner))
	}
	lines = append(lines, fmt.Sprintf(
		"• Time: %s", time.Unix(event.Timestamp, 0).UTC().Format(time.RFC3339),
	))
	return strings.Join(lines, "\n")
}

func formatGenericAlert(data map[string]any) string {
	lines := make([]string, 0)
	for key, value := range data {
		lines = append(lines, fmt.Sprintf("• %s: %v", key, value))
	}
	return strings.Join(lines, "\n")
}

// formatAmount renders a base-unit amount of an 8-decimals outcome token.
func formatAmount(amount uint64) string {
	const unit = 100_000_000

	whole := amount / unit
	frac := amount % unit

	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}

	f := strings.TrimRight(fmt.Sprintf("%08d", frac), "0")
	return fmt.Sprintf("%d.%s", whole, f)
}
