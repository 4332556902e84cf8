// Package paymentgateway wraps the external payment provider. All monetary
// amounts cross this boundary in the gateway's minor-unit convention; the
// conversion to and from major units happens here and nowhere else.
package paymentgateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// SignatureHeader carries the HMAC the gateway signs push notifications with.
const SignatureHeader = "X-Gateway-Signature"

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending"
)

// VerifyResult is the subsystem's view of a gateway transaction lookup.
// Amount is already converted back to major units; RawResponse is kept
// verbatim for the audit trail.
type VerifyResult struct {
	Status      Status
	Amount      float64
	PaidAt      *time.Time
	RawResponse json.RawMessage
}

type Config struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
	Timeout     time.Duration
}

type Client struct {
	baseURL     string
	secretKey   string
	callbackURL string
	client      *http.Client
	logger      *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:     config.BaseURL,
		secretKey:   config.SecretKey,
		callbackURL: config.CallbackURL,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// InitializeSession opens a hosted checkout session for the reference and
// returns the URL the customer completes payment at.
func (c *Client) InitializeSession(ctx context.Context, reference string, amount float64) (string, error) {
	payload := map[string]interface{}{
		"reference":    reference,
		"amount":       toMinorUnits(amount),
		"callback_url": c.callbackURL,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session request: %w", err)
	}

	url := fmt.Sprintf("%s/transaction/initialize", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	c.logger.Info("initializing payment session",
		"reference", reference,
		"amount_minor", toMinorUnits(amount))

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read session response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Error("gateway rejected session initialization",
			"status", resp.StatusCode,
			"reference", reference,
			"response", string(respBody))
		return "", fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var sessionResp struct {
		Data struct {
			AuthorizationURL string `json:"authorization_url"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &sessionResp); err != nil {
		return "", fmt.Errorf("failed to decode session response: %w", err)
	}
	if sessionResp.Data.AuthorizationURL == "" {
		return "", fmt.Errorf("gateway returned empty checkout url for %s", reference)
	}

	c.logger.Info("payment session initialized",
		"reference", reference,
		"checkout_url", sessionResp.Data.AuthorizationURL)

	return sessionResp.Data.AuthorizationURL, nil
}

// VerifyTransaction asks the gateway whether money actually moved for the
// reference. Push payloads are only ever a trigger to call this; the answer
// here is the sole source of truth.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*VerifyResult, error) {
	url := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read verify response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("gateway verify returned error",
			"status", resp.StatusCode,
			"reference", reference,
			"response", string(respBody))
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var verifyResp struct {
		Data struct {
			Status      string  `json:"status"`
			AmountMinor int64   `json:"amount"`
			PaidAt      *string `json:"paid_at"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &verifyResp); err != nil {
		return nil, fmt.Errorf("failed to decode verify response: %w", err)
	}

	result := &VerifyResult{
		Status:      mapGatewayStatus(verifyResp.Data.Status),
		Amount:      fromMinorUnits(verifyResp.Data.AmountMinor),
		RawResponse: respBody,
	}
	if verifyResp.Data.PaidAt != nil {
		if t, err := time.Parse(time.RFC3339, *verifyResp.Data.PaidAt); err == nil {
			result.PaidAt = &t
		}
	}

	c.logger.Info("transaction verified",
		"reference", reference,
		"status", result.Status,
		"amount", result.Amount)

	return result, nil
}

// AuthenticateNotification checks the HMAC-SHA512 signature the gateway puts
// on push notifications. The raw body must be used unmodified.
func (c *Client) AuthenticateNotification(rawPayload []byte, signatureHeader string) bool {
	if signatureHeader == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(c.secretKey))
	mac.Write(rawPayload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

func mapGatewayStatus(status string) Status {
	switch status {
	case "success", "succeeded":
		return StatusSucceeded
	case "failed", "abandoned", "reversed":
		return StatusFailed
	default:
		return StatusPending
	}
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromMinorUnits(minor int64) float64 {
	return float64(minor) / 100
}
