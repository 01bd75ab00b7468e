package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultBaseURL = "https://api.twilio.com"

// APIError is a non-2xx response from the voice REST API.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("twilio: api error %d (http %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("twilio: http %d: %s", e.StatusCode, e.Message)
}

// Client talks to the voice REST API with account-credential basic auth.
type Client struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

func NewClient(accountSID, authToken string) *Client {
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
}

// NewClientWithBaseURL overrides the API host, for tests.
func NewClientWithBaseURL(accountSID, authToken, baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Call is one call leg as reported by the REST API.
type Call struct {
	SID    string `json:"sid"`
	From   string `json:"from"`
	To     string `json:"to"`
	Status string `json:"status"`
}

// PlaceCallParams describes one outbound leg. Exactly one of TwiML or
// CallbackURL supplies the instructions the far end executes on answer.
type PlaceCallParams struct {
	From        string
	To          string
	TwiML       string
	CallbackURL string

	// StatusCallback, when set, receives lifecycle webhooks for the leg.
	StatusCallback string
	// StatusEvents selects which lifecycle transitions post to the
	// callback. Defaults to every transition when empty.
	StatusEvents []string
}

var defaultStatusEvents = []string{"initiated", "ringing", "answered", "completed"}

// PlaceCall creates an outbound call leg and returns its sid.
func (c *Client) PlaceCall(ctx context.Context, p PlaceCallParams) (string, error) {
	form := url.Values{}
	form.Set("From", p.From)
	form.Set("To", p.To)
	switch {
	case p.TwiML != "":
		form.Set("Twiml", p.TwiML)
	case p.CallbackURL != "":
		form.Set("Url", p.CallbackURL)
	default:
		return "", fmt.Errorf("twilio: place call: no TwiML and no callback URL")
	}
	if p.StatusCallback != "" {
		form.Set("StatusCallback", p.StatusCallback)
		form.Set("StatusCallbackMethod", "POST")
		events := p.StatusEvents
		if len(events) == 0 {
			events = defaultStatusEvents
		}
		for _, ev := range events {
			form.Add("StatusCallbackEvent", ev)
		}
	}

	var created Call
	if err := c.do(ctx, "POST", c.callsPath(""), form, &created); err != nil {
		return "", err
	}
	if created.SID == "" {
		return "", fmt.Errorf("twilio: place call: response missing sid")
	}
	return created.SID, nil
}

// EndCall hangs up a live leg. Ending an already-completed leg returns the
// API's error; callers treat that as benign.
func (c *Client) EndCall(ctx context.Context, callSID string) error {
	form := url.Values{}
	form.Set("Status", "completed")
	return c.do(ctx, "POST", c.callsPath(callSID), form, nil)
}

// activeStatuses are the lifecycle states a leg can occupy before it has
// ended. Legs in any of them hold real channels on the account.
var activeStatuses = []string{"queued", "ringing", "in-progress"}

// ActiveCalls lists every leg on the account that has not yet ended.
func (c *Client) ActiveCalls(ctx context.Context) ([]Call, error) {
	var out []Call
	for _, status := range activeStatuses {
		q := url.Values{}
		q.Set("Status", status)
		var page struct {
			Calls []Call `json:"calls"`
		}
		if err := c.do(ctx, "GET", c.callsPath("")+"?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Calls...)
	}
	return out, nil
}

func (c *Client) callsPath(callSID string) string {
	if callSID == "" {
		return fmt.Sprintf("/2010-04-01/Accounts/%s/Calls.json", c.accountSID)
	}
	return fmt.Sprintf("/2010-04-01/Accounts/%s/Calls/%s.json", c.accountSID, callSID)
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("twilio: create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("twilio: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var parsed APIError
		if json.Unmarshal(data, &parsed) == nil && parsed.Message != "" {
			apiErr.Code = parsed.Code
			apiErr.Message = parsed.Message
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("twilio: decode response: %w", err)
		}
	}
	return nil
}
