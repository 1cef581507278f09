package consumption

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/awaistahir/smart-tariff/internal/engine"
	"github.com/shopspring/decimal"
)

const (
	glowAPIBase = "https://api.glowmarkt.com/api/v0-1"
	// Glowmarkt limits half-hourly queries to ten days
	glowMaxSpan  = 10 * 24 * time.Hour
	glowTimeForm = "2006-01-02T15:04:05"
)

// GlowClient fetches half-hourly consumption for a Glowmarkt (Bright) resource
type GlowClient struct {
	httpClient    *http.Client
	baseURL       string
	applicationID string
	username      string
	password      string
	resourceID    string
	token         string
}

// NewGlowClient creates a client for one electricity consumption resource
func NewGlowClient(applicationID, username, password, resourceID string) *GlowClient {
	return &GlowClient{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		baseURL:       glowAPIBase,
		applicationID: applicationID,
		username:      username,
		password:      password,
		resourceID:    resourceID,
	}
}

// WithBaseURL points the client at another API root
func (c *GlowClient) WithBaseURL(base string) *GlowClient {
	c.baseURL = base
	return c
}

type glowAuthResponse struct {
	Valid bool   `json:"valid"`
	Token string `json:"token"`
}

type glowReadingsResponse struct {
	Data [][2]decimal.Decimal `json:"data"`
}

// Consumption returns the readings in [from, to), split into ten-day requests.
// Glowmarkt stamps each reading with the start of its slot; readings here carry the end.
func (c *GlowClient) Consumption(ctx context.Context, from, to time.Time) ([]engine.Reading, error) {
	if c.token == "" {
		if err := c.authenticate(ctx); err != nil {
			return nil, err
		}
	}

	var readings []engine.Reading
	for start := from.UTC(); start.Before(to); start = start.Add(glowMaxSpan) {
		end := start.Add(glowMaxSpan)
		if end.After(to) {
			end = to.UTC()
		}
		chunk, err := c.readings(ctx, start, end)
		if err != nil {
			return nil, err
		}
		readings = append(readings, chunk...)
	}
	return readings, nil
}

func (c *GlowClient) authenticate(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("applicationId", c.applicationID)

	var auth glowAuthResponse
	if err := c.do(req, &auth); err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	if !auth.Valid || auth.Token == "" {
		return fmt.Errorf("authenticating: credentials rejected")
	}
	c.token = auth.Token
	return nil
}

func (c *GlowClient) readings(ctx context.Context, from, to time.Time) ([]engine.Reading, error) {
	params := url.Values{}
	params.Add("period", "PT30M")
	params.Add("function", "sum")
	params.Add("from", from.Format(glowTimeForm))
	params.Add("to", to.Format(glowTimeForm))
	params.Add("offset", "0")
	endpoint := fmt.Sprintf("%s/resource/%s/readings?%s", c.baseURL, url.PathEscape(c.resourceID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("applicationId", c.applicationID)
	req.Header.Set("token", c.token)

	var resp glowReadingsResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("fetching consumption: %w", err)
	}

	readings := make([]engine.Reading, 0, len(resp.Data))
	for _, pair := range resp.Data {
		start := time.Unix(pair[0].IntPart(), 0).UTC()
		// the upper bound is inclusive on the Glowmarkt side
		if !start.Before(to) {
			continue
		}
		readings = append(readings, engine.Reading{Period: start.Add(30 * time.Minute), Value: pair[1]})
	}
	return readings, nil
}

func (c *GlowClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
