package flashship

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aiotts_gateway/internal/retry"

	"github.com/rs/zerolog/log"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

var (
	ErrInvalidMode = errors.New("invalid mode")
	// ErrUpstream wraps transport failures talking to FlashShip.
	ErrUpstream = errors.New("flashship request failed")
)

// ParseMode maps the mode query value; empty means dev.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeDev:
		return ModeDev, nil
	case ModeProd:
		return ModeProd, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Response is an upstream reply passed through unchanged.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

type Client struct {
	client    *http.Client
	endpoints map[Mode]string
	config    retry.Config
}

func NewClient(devEndpoint, prodEndpoint string, config retry.Config) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		endpoints: map[Mode]string{
			ModeDev:  strings.TrimSuffix(devEndpoint, "/"),
			ModeProd: strings.TrimSuffix(prodEndpoint, "/"),
		},
		config: config,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges seller credentials for a token. An upstream body with
// msg "fail" is reported as 401 whatever status FlashShip used.
func (c *Client) Login(ctx context.Context, mode Mode, username, password string) (*Response, error) {
	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode login: %w", err)
	}

	resp, err := c.do(ctx, mode, http.MethodPost, "/seller-api-v2/token", "", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(resp.Body, &result) == nil && result.Msg == "fail" {
		resp.StatusCode = http.StatusUnauthorized
	}
	return resp, nil
}

func (c *Client) CreateOrder(ctx context.Context, mode Mode, accessToken string, order json.RawMessage) (*Response, error) {
	return c.do(ctx, mode, http.MethodPost, "/seller-api-v2/orders/shirt-add", accessToken, order)
}

func (c *Client) OrderDetails(ctx context.Context, mode Mode, accessToken, orderCode string) (*Response, error) {
	return c.do(ctx, mode, http.MethodGet, "/seller-api-v2/orders/"+url.PathEscape(orderCode), accessToken, nil)
}

func (c *Client) CancelOrder(ctx context.Context, mode Mode, accessToken string, cancel json.RawMessage) (*Response, error) {
	return c.do(ctx, mode, http.MethodPost, "/seller-api-v2/orders/seller-reject", accessToken, cancel)
}

func (c *Client) do(ctx context.Context, mode Mode, method, path, accessToken string, body []byte) (*Response, error) {
	endpoint, ok := c.endpoints[mode]
	if !ok || endpoint == "" {
		return nil, fmt.Errorf("%w: no endpoint configured for %q", ErrInvalidMode, mode)
	}
	target := endpoint + path

	log.Debug().Str("method", method).Str("url", target).Msg("Calling FlashShip")

	resp, err := retry.Once(ctx, c.config, func(ctx context.Context) (*Response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json, text/plain, */*")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if accessToken != "" {
			req.Header.Set("Authorization", "Bearer "+accessToken)
		}

		httpResp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to make request: %w", err)
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return &Response{
			StatusCode:  httpResp.StatusCode,
			ContentType: httpResp.Header.Get("Content-Type"),
			Body:        data,
		}, nil
	})
	if err != nil {
		log.Error().Err(err).Str("url", target).Msg("FlashShip request failed")
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	log.Debug().Int("status", resp.StatusCode).Str("url", target).Msg("FlashShip responded")
	return resp, nil
}

// SplitAccessToken pulls access_token out of a JSON object and drops the
// gateway's api_key, returning the payload to forward.
func SplitAccessToken(body []byte) (string, json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", nil, fmt.Errorf("request body must be a JSON object: %w", err)
	}

	var token string
	if raw, ok := fields["access_token"]; ok {
		if err := json.Unmarshal(raw, &token); err != nil {
			return "", nil, fmt.Errorf("access_token must be a string: %w", err)
		}
	}
	delete(fields, "access_token")
	delete(fields, "api_key")

	payload, err := json.Marshal(fields)
	if err != nil {
		return "", nil, err
	}
	return token, payload, nil
}
