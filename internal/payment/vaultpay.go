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

// Vaultpay wallet gateway. Uses auth/capture/void terminology and result code
// 0 for success.
const vaultpayCodeOK = 0

type Vaultpay struct {
	hc    *http.Client
	base  string
	token string
}

func NewVaultpay(baseURL, token string) *Vaultpay {
	return &Vaultpay{
		hc:    &http.Client{Timeout: 10 * time.Second},
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
	}
}

func (v *Vaultpay) Name() string { return "vaultpay" }

func (v *Vaultpay) Authorize(ctx context.Context, credentials []byte, amountCents int64) (string, error) {
	var creds struct {
		WalletID string `json:"wallet_id"`
	}
	if err := json.Unmarshal(credentials, &creds); err != nil {
		return "", fmt.Errorf("vaultpay credentials: %w", err)
	}
	if creds.WalletID == "" {
		return "", fmt.Errorf("vaultpay credentials: missing wallet_id")
	}

	payload := map[string]any{
		"wallet_id":   creds.WalletID,
		"minor_units": amountCents,
	}
	var out struct {
		Code      int    `json:"code"`
		Reference string `json:"reference"`
	}
	if err := v.post(ctx, "/auth", payload, &out); err != nil {
		return "", err
	}
	if out.Code != vaultpayCodeOK || out.Reference == "" {
		return "", fmt.Errorf("vaultpay auth refused (code=%d)", out.Code)
	}
	return out.Reference, nil
}

func (v *Vaultpay) Commit(ctx context.Context, token string) error {
	var out struct {
		Code int `json:"code"`
	}
	if err := v.post(ctx, "/capture", map[string]any{"reference": token}, &out); err != nil {
		return err
	}
	if out.Code != vaultpayCodeOK {
		return fmt.Errorf("vaultpay capture refused (code=%d)", out.Code)
	}
	return nil
}

func (v *Vaultpay) Rollback(ctx context.Context, token string) error {
	var out struct {
		Code int `json:"code"`
	}
	if err := v.post(ctx, "/void", map[string]any{"reference": token}, &out); err != nil {
		return err
	}
	if out.Code != vaultpayCodeOK {
		return fmt.Errorf("vaultpay void refused (code=%d)", out.Code)
	}
	return nil
}

func (v *Vaultpay) post(ctx context.Context, path string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.token)

	resp, err := v.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("vaultpay %s http %d: %s", path, resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
