package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client wraps REST access to the terminal backend.
type Client struct {
	BaseURL    string
	Token      string
	TerminalID string
	HTTPClient *http.Client
}

// NewClient builds a REST client against the backend base URL.
func NewClient(baseURL, token, terminalID string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		TerminalID: terminalID,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError carries the structured error payload the backend returns on a
// rejected request, so the operator sees the venue's own detail.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend: %s (status %d)", e.Detail, e.Status)
	}
	return fmt.Sprintf("backend: status %d", e.Status)
}

// ContractsFor queries the contract types the venue permits for one
// (symbol, product family) pair.
func (c *Client) ContractsFor(ctx context.Context, symbol, family string) (*CapabilitySet, error) {
	params := url.Values{}
	params.Set("family", family)
	u := fmt.Sprintf("%s/api/contracts/%s?%s", c.BaseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, c.readError(res)
	}

	var raw contractsForResponse
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode contracts_for %s/%s: %w", symbol, family, err)
	}

	// Smart-fallback wrapper: the answer for our symbol (or the backend's
	// first supported one) is nested under results.
	if len(raw.Results) > 0 {
		key := symbol
		if _, ok := raw.Results[key]; !ok && raw.FirstSupported != "" {
			key = raw.FirstSupported
		}
		if nested, ok := raw.Results[key]; ok {
			var set CapabilitySet
			if err := json.Unmarshal(nested, &set); err != nil {
				return nil, fmt.Errorf("decode contracts_for result %s: %w", key, err)
			}
			return &set, nil
		}
	}

	set := raw.CapabilitySet
	return &set, nil
}

// SubmitOrder posts one order request payload and returns the backend ack.
// The payload is one of the engine-specific variants built by internal/order.
func (c *Client) SubmitOrder(ctx context.Context, payload any) (OrderAck, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OrderAck{}, fmt.Errorf("encode order: %w", err)
	}

	u := c.BaseURL + "/api/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return OrderAck{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return OrderAck{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return OrderAck{}, c.readError(res)
	}

	var ack OrderAck
	if err := json.NewDecoder(res.Body).Decode(&ack); err != nil {
		return OrderAck{}, fmt.Errorf("decode order ack: %w", err)
	}
	if ack.ContractID == "" {
		return OrderAck{}, fmt.Errorf("order ack missing contract_id")
	}
	return ack, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.TerminalID != "" {
		req.Header.Set("X-Terminal-ID", c.TerminalID)
	}
}

// readError extracts the backend's {detail} payload, falling back to the raw
// body when the shape is unexpected.
func (c *Client) readError(res *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Detail != "" {
		return &APIError{Status: res.StatusCode, Detail: payload.Detail}
	}
	return &APIError{Status: res.StatusCode, Detail: strings.TrimSpace(string(data))}
}
