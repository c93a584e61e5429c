package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Config contains usage provider client configuration.
type Config struct {
	BaseURL          string
	FailureThreshold uint32
	CircuitTimeout   time.Duration
}

// httpProvider implements outbound.UsageSnapshotPort against the HTTP API of the
// system that owns gyms, clients and users.
type httpProvider struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*model.UsageSnapshot]
	logger  *zap.Logger
}

// NewHTTPProvider creates a new usage snapshot provider.
// Consecutive failures open the circuit and further calls fail fast with ErrUsageUnavailable.
func NewHTTPProvider(client *http.Client, cfg Config, logger *zap.Logger) outbound.UsageSnapshotPort {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CircuitTimeout <= 0 {
		cfg.CircuitTimeout = 30 * time.Second
	}
	threshold := cfg.FailureThreshold

	settings := gobreaker.Settings{
		Name:        "usage-provider",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.CircuitTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("usage provider circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Unknown organizations are answers, not provider failures.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errOrganizationUnknown)
		},
	}

	return &httpProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[*model.UsageSnapshot](settings),
		logger:  logger,
	}
}

var errOrganizationUnknown = errors.New("organization unknown to usage provider")

// usageResponse is the wire format of the provider.
type usageResponse struct {
	GymCount     int64     `json:"gym_count"`
	TotalClients int64     `json:"total_clients"`
	TotalUsers   int64     `json:"total_users"`
	CapturedAt   time.Time `json:"captured_at"`
}

func (p *httpProvider) GetUsage(ctx context.Context, orgID uuid.UUID) (*model.UsageSnapshot, error) {
	snapshot, err := p.breaker.Execute(func() (*model.UsageSnapshot, error) {
		return p.fetch(ctx, orgID)
	})
	if err == nil {
		return snapshot, nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: circuit open", outbound.ErrUsageUnavailable)
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return nil, fmt.Errorf("%w: %v", outbound.ErrUsageTimeout, err)
	case errors.Is(err, outbound.ErrUsageUnavailable):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %v", outbound.ErrUsageUnavailable, err)
	}
}

func (p *httpProvider) fetch(ctx context.Context, orgID uuid.UUID) (*model.UsageSnapshot, error) {
	endpoint := p.baseURL + "/organizations/" + url.PathEscape(orgID.String()) + "/usage"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %w", outbound.ErrUsageUnavailable, errOrganizationUnknown)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("usage provider returned status %d", resp.StatusCode)
	}

	var body usageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode usage response: %w", err)
	}
	if body.GymCount < 0 || body.TotalClients < 0 || body.TotalUsers < 0 {
		return nil, fmt.Errorf("usage provider returned negative counts")
	}
	if body.CapturedAt.IsZero() {
		body.CapturedAt = time.Now().UTC()
	}

	return &model.UsageSnapshot{
		GymCount:     body.GymCount,
		TotalClients: body.TotalClients,
		TotalUsers:   body.TotalUsers,
		CapturedAt:   body.CapturedAt,
	}, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Compile-time check
var _ outbound.UsageSnapshotPort = (*httpProvider)(nil)
