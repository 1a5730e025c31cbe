package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const DefaultTwilioURL = "https://api.twilio.com/2010-04-01"

// Config holds Twilio credentials and delivery limits.
type Config struct {
	AccountSID string
	AuthToken  string
	// From is the sender number, with or without the whatsapp: prefix.
	From            string
	BaseURL         string
	Timeout         time.Duration
	RetryMaxElapsed time.Duration
	SendRPS         float64
}

// APIError is an error response from the Messages API.
type APIError struct {
	Status  int    `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio: status %d code %d: %s", e.Status, e.Code, e.Message)
}

// Client sends WhatsApp messages through the Twilio Messages API.
type Client struct {
	http    *http.Client
	conf    Config
	limiter *rate.Limiter
}

func NewClient(conf Config) *Client {
	if conf.BaseURL == "" {
		conf.BaseURL = DefaultTwilioURL
	}
	if conf.Timeout <= 0 {
		conf.Timeout = 10 * time.Second
	}
	if conf.RetryMaxElapsed <= 0 {
		conf.RetryMaxElapsed = 15 * time.Second
	}
	if conf.SendRPS <= 0 {
		conf.SendRPS = 10
	}
	return &Client{
		http:    &http.Client{Timeout: conf.Timeout},
		conf:    conf,
		limiter: rate.NewLimiter(rate.Limit(conf.SendRPS), int(conf.SendRPS)+1),
	}
}

func address(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:" + phone
}

// Send delivers a free-form text message.
func (c *Client) Send(ctx context.Context, phone, text string) error {
	form := url.Values{}
	form.Set("Body", text)
	return c.post(ctx, phone, form)
}

// SendTemplated delivers a pre-approved content template with numbered variables.
func (c *Client) SendTemplated(ctx context.Context, phone, contentSID string, vars map[string]string) error {
	form := url.Values{}
	form.Set("ContentSid", contentSID)
	if len(vars) > 0 {
		raw, err := json.Marshal(vars)
		if err != nil {
			return fmt.Errorf("encode content variables: %w", err)
		}
		form.Set("ContentVariables", string(raw))
	}
	return c.post(ctx, phone, form)
}

func (c *Client) post(ctx context.Context, phone string, form url.Values) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	form.Set("From", address(c.conf.From))
	form.Set("To", address(phone))
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.conf.BaseURL, c.conf.AccountSID)
	body := form.Encode()

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.SetBasicAuth(c.conf.AccountSID, c.conf.AuthToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}

		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		apiErr.Status = resp.StatusCode
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 300 * time.Millisecond
	b.MaxElapsedTime = c.conf.RetryMaxElapsed
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}
