package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Payline two-phase card API. Status is numeric; 100 is the only success
// code, everything else (including transport errors) is a decline.
const paylineStatusOK = 100

type Payline struct {
	hc     *http.Client
	base   string
	apiKey string
}

func NewPayline(baseURL, apiKey string) *Payline {
	return &Payline{
		hc:     &http.Client{Timeout: 10 * time.Second},
		base:   strings.TrimRight(baseURL, "/"),
		apiKey: apiKey,
	}
}

func (p *Payline) Name() string { return "payline" }

func (p *Payline) Authorize(ctx context.Context, credentials []byte, amountCents int64) (string, error) {
	payload := map[string]any{
		"amount":      amountCents,
		"currency":    "EUR",
		"credentials": json.RawMessage(credentials),
	}
	var out struct {
		Status int    `json:"status"`
		Token  string `json:"token"`
	}
	if err := p.post(ctx, "/v1/authorize", payload, &out); err != nil {
		return "", err
	}
	if out.Status != paylineStatusOK || out.Token == "" {
		return "", fmt.Errorf("payline authorize declined (status=%d)", out.Status)
	}
	return out.Token, nil
}

func (p *Payline) Commit(ctx context.Context, token string) error {
	var out struct {
		Status int `json:"status"`
	}
	if err := p.post(ctx, "/v1/commit", map[string]any{"token": token}, &out); err != nil {
		return err
	}
	if out.Status != paylineStatusOK {
		return fmt.Errorf("payline commit declined (status=%d)", out.Status)
	}
	return nil
}

func (p *Payline) Rollback(ctx context.Context, token string) error {
	var out struct {
		Status int `json:"status"`
	}
	if err := p.post(ctx, "/v1/rollback", map[string]any{"token": token}, &out); err != nil {
		return err
	}
	if out.Status != paylineStatusOK {
		return fmt.Errorf("payline rollback refused (status=%d)", out.Status)
	}
	return nil
}

func (p *Payline) post(ctx context.Context, path string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Payline-Key", p.apiKey)

	resp, err := p.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("payline %s http %d: %s", path, resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
