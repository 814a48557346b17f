package esios

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/icodeforyou/meterit-go/config"
	"github.com/icodeforyou/meterit-go/httputil"
	"github.com/icodeforyou/meterit-go/period"
	"github.com/icodeforyou/meterit-go/types"
	"github.com/shopspring/decimal"
)

const (
	acceptHeader = "application/json; application/vnd.esios-api-v2+json"
	dayLayout    = "2006-01-02"
)

var ErrMissingIndicator = errors.New("esios response has no indicator")

type rawValue struct {
	GeoID    int             `json:"geo_id"`
	Value    decimal.Decimal `json:"value"`
	Datetime time.Time       `json:"datetime"`
}

type rawResponse struct {
	Indicator *struct {
		Values []rawValue `json:"values"`
	} `json:"indicator"`
}

// Client reads a day-ahead price indicator from the REE ESIOS API.
type Client struct {
	logger    *slog.Logger
	baseURL   string
	token     string
	indicator int
	geoID     int
	client    *http.Client
	retry     httputil.RetryConfig
}

func New(cnfg config.AppConfigEsios) *Client {
	return &Client{
		logger:    slog.Default().With(slog.String("module", "esios")),
		baseURL:   cnfg.GetBaseURL(),
		token:     cnfg.Token,
		indicator: cnfg.GetIndicator(),
		geoID:     cnfg.GetGeoID(),
		client:    &http.Client{Timeout: cnfg.GetTimeout()},
		retry: httputil.RetryConfig{
			MaxAttempts: cnfg.GetRetryAttempts(),
			BaseDelay:   cnfg.GetRetryBaseDelay(),
			MaxDelay:    cnfg.GetRetryMaxDelay(),
		},
	}
}

// GetPrices returns the half-hour prices of the configured region for the
// calendar date of day, from 00:00 to 23:30.
func (c *Client) GetPrices(ctx context.Context, day time.Time) ([]types.PricePoint, error) {
	u := c.url(day)
	c.logger.Debug("fetching prices", slog.String("url", u))

	resp, err := httputil.Do(ctx, c.logger, c.client, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", acceptHeader)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.token)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, string(body))
	}

	var raw rawResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if raw.Indicator == nil {
		return nil, ErrMissingIndicator
	}

	prices := make([]types.PricePoint, 0, len(raw.Indicator.Values))
	for _, v := range raw.Indicator.Values {
		if v.GeoID != c.geoID {
			continue
		}
		if v.Datetime.IsZero() {
			return nil, fmt.Errorf("price value without datetime for geo %d", v.GeoID)
		}
		prices = append(prices, types.PricePoint{
			Slot:  period.FromTime(v.Datetime),
			Price: v.Value,
		})
	}

	c.logger.Debug("prices fetched",
		slog.Int("received", len(raw.Indicator.Values)),
		slog.Int("kept", len(prices)))

	return prices, nil
}

func (c *Client) url(day time.Time) string {
	date := day.Format(dayLayout)
	q := url.Values{}
	q.Set("start_date", date+"T00:00")
	q.Set("end_date", date+"T23:30")
	return fmt.Sprintf("%s/indicators/%d?%s", c.baseURL, c.indicator, q.Encode())
}
