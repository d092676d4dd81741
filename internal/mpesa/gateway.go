package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// PushRequest carries the parameters of an STK push.
type PushRequest struct {
	Phone       string
	Amount      decimal.Decimal
	AccountRef  string
	Description string
}

// PushResponse is the gateway acknowledgement of a push.
type PushResponse struct {
	MerchantRequestID string
	CheckoutRequestID string
}

// Gateway abstracts the payment provider so the service can be tested
// against a fake.
type Gateway interface {
	STKPush(ctx context.Context, req PushRequest) (PushResponse, error)
}

// DarajaClient wraps interactions with the Safaricom Daraja API.
type DarajaClient struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	shortcode      string
	passkey        string
	callbackURL    string
	httpClient     *http.Client
	now            func() time.Time
}

// DarajaConfig carries the credentials and endpoints of a Daraja app.
type DarajaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
}

// NewDarajaClient constructs a new client.
func NewDarajaClient(cfg DarajaConfig) *DarajaClient {
	return &DarajaClient{
		baseURL:        cfg.BaseURL,
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		shortcode:      cfg.Shortcode,
		passkey:        cfg.Passkey,
		callbackURL:    cfg.CallbackURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

func (c *DarajaClient) token(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/oauth/v1/generate?grant_type=client_credentials", c.baseURL), nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("daraja auth returned status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("daraja auth returned empty token")
	}
	return payload.AccessToken, nil
}

// STKPush initiates a payment prompt on the customer's handset.
func (c *DarajaClient) STKPush(ctx context.Context, push PushRequest) (PushResponse, error) {
	token, err := c.token(ctx)
	if err != nil {
		return PushResponse{}, err
	}

	timestamp := c.now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(c.shortcode + c.passkey + timestamp))

	body, err := json.Marshal(map[string]any{
		"BusinessShortCode": c.shortcode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            push.Amount.Round(0).IntPart(),
		"PartyA":            push.Phone,
		"PartyB":            c.shortcode,
		"PhoneNumber":       push.Phone,
		"CallBackURL":       c.callbackURL,
		"AccountReference":  push.AccountRef,
		"TransactionDesc":   push.Description,
	})
	if err != nil {
		return PushResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/mpesa/stkpush/v1/processrequest", c.baseURL), bytes.NewReader(body))
	if err != nil {
		return PushResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PushResponse{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return PushResponse{}, fmt.Errorf("stk push failed with status %d", resp.StatusCode)
	}

	var payload struct {
		MerchantRequestID string `json:"MerchantRequestID"`
		CheckoutRequestID string `json:"CheckoutRequestID"`
		ResponseCode      string `json:"ResponseCode"`
		ResponseDesc      string `json:"ResponseDescription"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PushResponse{}, err
	}
	if payload.ResponseCode != "0" {
		return PushResponse{}, fmt.Errorf("stk push rejected: %s", payload.ResponseDesc)
	}
	return PushResponse{
		MerchantRequestID: payload.MerchantRequestID,
		CheckoutRequestID: payload.CheckoutRequestID,
	}, nil
}

var _ Gateway = (*DarajaClient)(nil)
