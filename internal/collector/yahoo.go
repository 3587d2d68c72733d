package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"BollWatch/internal/model"

	"github.com/shopspring/decimal"
)

// DefaultYahooURL is the public chart API host.
const DefaultYahooURL = "https://query1.finance.yahoo.com"

// YahooSource implements Source using the Yahoo Finance chart API.
// It needs no credential.
type YahooSource struct {
	BaseURL string
	Client  *http.Client
}

// NewYahooSource creates a new Yahoo Finance source.
func NewYahooSource(baseURL, proxyURL string) *YahooSource {
	if baseURL == "" {
		baseURL = DefaultYahooURL
	}
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Transport: transport},
	}
}

func (s *YahooSource) Name() string { return "yahoo" }

// yahooSymbol converts a watchlist symbol (700.HK, AAPL.US, 600519.SH)
// to the Yahoo ticker (0700.HK, AAPL, 600519.SS).
func yahooSymbol(symbol string) string {
	code, market, ok := strings.Cut(symbol, ".")
	if !ok {
		return symbol
	}
	switch strings.ToUpper(market) {
	case "US":
		return code
	case "HK":
		for len(code) < 4 {
			code = "0" + code
		}
		return code + ".HK"
	case "SH":
		return code + ".SS"
	default:
		return symbol
	}
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// chartRange picks the smallest Yahoo range that covers count trading days.
func chartRange(count int) string {
	switch {
	case count <= 20:
		return "1mo"
	case count <= 60:
		return "3mo"
	case count <= 120:
		return "6mo"
	case count <= 250:
		return "1y"
	default:
		return "2y"
	}
}

func (s *YahooSource) FetchDailyCloses(ctx context.Context, symbol string, count int) ([]model.PricePoint, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%s",
		s.BaseURL, url.PathEscape(yahooSymbol(symbol)), chartRange(count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, newFetchError(model.ErrFatal, symbol, 0, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, classifyTransport(symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(symbol, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(symbol, resp.StatusCode, body, false)
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, newFetchError(model.ErrFatal, symbol, resp.StatusCode, fmt.Errorf("yahoo decode: %w", err))
	}
	if chart.Chart.Error != nil {
		return nil, newFetchError(model.ErrFatal, symbol, resp.StatusCode, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description))
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, newFetchError(model.ErrFatal, symbol, resp.StatusCode, fmt.Errorf("yahoo: no data returned"))
	}

	result := chart.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	points := make([]model.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue // null bars on holidays
		}
		points = append(points, model.PricePoint{
			Time:  time.Unix(ts, 0).UTC(),
			Close: decimal.NewFromFloat(*closes[i]),
		})
	}
	if len(points) > count {
		points = points[len(points)-count:]
	}
	return points, nil
}
