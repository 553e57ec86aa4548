// Package backend содержит REST-клиент бэкенда админ-консоли: выдача токенов чата,
// перевод и список комнат.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chat-console/internal/domain"
)

// ErrUnexpectedStatus возвращается при ответе с неожиданным кодом.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// Client это клиент REST API бэкенда.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	log        *slog.Logger
}

// Option определяет функциональную опцию клиента.
type Option func(*Client)

// WithHTTPClient подменяет http-клиент.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout задает общий таймаут запросов.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient создает клиент. apiToken передается в заголовке Authorization.
func NewClient(baseURL, apiToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "backend")
	return c
}

type roomsResponse struct {
	List []domain.Room `json:"list"`
}

// FetchChatToken запрашивает пару токенов для входа в комнату.
func (c *Client) FetchChatToken(ctx context.Context, req domain.TokenRequest) (domain.Tokens, error) {
	var tokens domain.Tokens
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat/token", req, &tokens); err != nil {
		return domain.Tokens{}, fmt.Errorf("fetch chat token: %w", err)
	}
	return tokens, nil
}

// TranslateText переводит текст.
func (c *Client) TranslateText(ctx context.Context, req domain.TranslateRequest) (domain.TranslateResult, error) {
	var res domain.TranslateResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/translate", req, &res); err != nil {
		return domain.TranslateResult{}, fmt.Errorf("translate text: %w", err)
	}
	return res, nil
}

// ListRooms возвращает комнаты площадки оператора.
func (c *Client) ListRooms(ctx context.Context, operator domain.Operator) ([]domain.Room, error) {
	q := url.Values{}
	q.Set("organizationId", operator.OrganizationID)
	q.Set("venueId", operator.VenueID)

	var res roomsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/chat/rooms?"+q.Encode(), nil, &res); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	for i := range res.List {
		if res.List[i].OrganizationID == "" {
			res.List[i].OrganizationID = operator.OrganizationID
		}
		if res.List[i].VenueID == "" {
			res.List[i].VenueID = operator.VenueID
		}
	}
	return res.List, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug("Backend request completed", "method", method, "path", req.URL.Path,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
