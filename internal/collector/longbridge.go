package collector

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"BollWatch/internal/model"

	"github.com/shopspring/decimal"
)

// DefaultLongBridgeURL is the production OpenAPI endpoint.
const DefaultLongBridgeURL = "https://openapi.longportapp.com"

// LongBridgeSource implements Source using the LongBridge quote REST API.
// The credential is read from Credentials on every request.
type LongBridgeSource struct {
	BaseURL     string
	Credentials CredentialProvider
	Client      *http.Client
	now         func() time.Time
}

// NewLongBridgeSource creates a source with optional proxy support.
func NewLongBridgeSource(baseURL string, creds CredentialProvider, proxyURL string) *LongBridgeSource {
	if baseURL == "" {
		baseURL = DefaultLongBridgeURL
	}
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &LongBridgeSource{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Credentials: creds,
		Client:      &http.Client{Transport: transport},
		now:         time.Now,
	}
}

func (s *LongBridgeSource) Name() string { return "longbridge" }

// lbResponse is the envelope every OpenAPI response uses.
type lbResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Candlesticks []struct {
			Close     string `json:"close"`
			Timestamp int64  `json:"timestamp"`
		} `json:"candlesticks"`
	} `json:"data"`
}

// Envelope codes. 401xxx are token problems, 429xxx are rate limits.
func lbCodeKind(code int) model.ErrorKind {
	switch code / 1000 {
	case 401, 403:
		return model.ErrAuthExpired
	case 429, 500, 503:
		return model.ErrTransient
	default:
		return model.ErrFatal
	}
}

func (s *LongBridgeSource) FetchDailyCloses(ctx context.Context, symbol string, count int) ([]model.PricePoint, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("period", "day")
	q.Set("count", strconv.Itoa(count))
	q.Set("adjust_type", "0")
	path := "/v1/quote/candlesticks"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, newFetchError(model.ErrFatal, symbol, 0, err)
	}
	s.sign(req, path, q.Encode(), s.Credentials.Current())

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
		return nil, classifyStatus(symbol, resp.StatusCode, body, true)
	}

	var r lbResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, newFetchError(model.ErrFatal, symbol, resp.StatusCode, fmt.Errorf("decode candlesticks: %w", err))
	}
	if r.Code != 0 {
		return nil, newFetchError(lbCodeKind(r.Code), symbol, resp.StatusCode, fmt.Errorf("api code %d: %s", r.Code, r.Message))
	}

	points := make([]model.PricePoint, 0, len(r.Data.Candlesticks))
	for _, c := range r.Data.Candlesticks {
		px, err := decimal.NewFromString(c.Close)
		if err != nil {
			return nil, newFetchError(model.ErrFatal, symbol, resp.StatusCode, fmt.Errorf("parse close %q: %w", c.Close, err))
		}
		points = append(points, model.PricePoint{Time: time.Unix(c.Timestamp, 0).UTC(), Close: px})
	}
	return points, nil
}

// sign sets the auth headers. The signature is HMAC-SHA256 over the method,
// path, query, token and timestamp, keyed by the app secret.
func (s *LongBridgeSource) sign(req *http.Request, path, query string, c model.Credential) {
	ts := strconv.FormatInt(s.now().Unix(), 10)
	req.Header.Set("X-Api-Key", c.AppKey)
	req.Header.Set("Authorization", c.AccessToken)
	req.Header.Set("X-Timestamp", ts)

	payload := strings.Join([]string{req.Method, path, query, c.AccessToken, ts}, "|")
	mac := hmac.New(sha256.New, []byte(c.AppSecret))
	mac.Write([]byte(payload))
	req.Header.Set("X-Api-Signature", "HMAC-SHA256 SignedHeaders=authorization;x-api-key;x-timestamp, Signature="+hex.EncodeToString(mac.Sum(nil)))
}
