package consumption

import (
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
	octopusAPIBase  = "https://api.octopus.energy/v1"
	octopusPageSize = 25000
)

// OctopusClient fetches half-hourly meter consumption from the Octopus Energy API
type OctopusClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	mpan       string
	serial     string
}

// NewOctopusClient creates a client for one electricity meter
func NewOctopusClient(apiKey, mpan, serial string) *OctopusClient {
	return &OctopusClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    octopusAPIBase,
		apiKey:     apiKey,
		mpan:       mpan,
		serial:     serial,
	}
}

// WithBaseURL points the client at another API root
func (c *OctopusClient) WithBaseURL(base string) *OctopusClient {
	c.baseURL = base
	return c
}

type octopusResponse struct {
	Count   int                  `json:"count"`
	Next    *string              `json:"next"`
	Results []octopusConsumption `json:"results"`
}

type octopusConsumption struct {
	Consumption   decimal.Decimal `json:"consumption"`
	IntervalStart time.Time       `json:"interval_start"`
	IntervalEnd   time.Time       `json:"interval_end"`
}

// Consumption returns the readings in [from, to), following pagination until the last page.
// Each reading is stamped with the end of its interval.
func (c *OctopusClient) Consumption(ctx context.Context, from, to time.Time) ([]engine.Reading, error) {
	if c.apiKey == "" || c.mpan == "" || c.serial == "" {
		return nil, fmt.Errorf("octopus: api key, mpan and serial are required")
	}

	params := url.Values{}
	params.Add("period_from", from.UTC().Format(time.RFC3339))
	params.Add("period_to", to.UTC().Format(time.RFC3339))
	params.Add("page_size", fmt.Sprint(octopusPageSize))
	params.Add("order_by", "period")
	next := fmt.Sprintf("%s/electricity-meter-points/%s/meters/%s/consumption/?%s",
		c.baseURL, url.PathEscape(c.mpan), url.PathEscape(c.serial), params.Encode())

	var readings []engine.Reading
	for next != "" {
		page, err := c.page(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Results {
			readings = append(readings, engine.Reading{Period: r.IntervalEnd, Value: r.Consumption})
		}
		next = ""
		if page.Next != nil {
			next = *page.Next
		}
	}
	return readings, nil
}

func (c *OctopusClient) page(ctx context.Context, pageURL string) (*octopusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching consumption: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var page octopusResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &page, nil
}
