// Package kit is a thin client for the Kit (ConvertKit) v3 HTTP API.
// Every operation performs exactly one HTTP request; there is no caching
// and no retry. Callers are expected to cache rarely-changing reference
// data (forms, tags, custom fields) themselves.
package kit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/webberzone/gluelink/internal/domain"
)

// DefaultBaseURL is the fixed Kit API base.
const DefaultBaseURL = "https://api.convertkit.com/v3/"

const requestTimeout = 45 * time.Second

// The Kit API caps custom fields per subscriber.
const maxCustomFields = 140

// Client calls the Kit API with a fixed key/secret pair.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	apiSecret  string
	logger     *slog.Logger
}

// NewClient creates a Kit API client.
func NewClient(apiKey, apiSecret string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		logger:     logger,
	}
}

// Response is a decoded Kit API response body.
type Response map[string]any

// ValidateAPICredentials checks the API key against the forms endpoint.
func (c *Client) ValidateAPICredentials(ctx context.Context) error {
	if c.apiKey == "" {
		return &APIError{Code: ErrCodeNoAPIKey, Message: "missing Kit API key"}
	}

	resp, err := c.get(ctx, "forms", nil)
	if err != nil {
		return err
	}
	if msg, ok := resp["error"].(string); ok && msg != "" {
		return &APIError{Code: ErrCodeAPI, Message: msg}
	}
	return nil
}

// GetAccount returns the account information. It requires the API secret
// and so validates the secret independently of the key.
func (c *Client) GetAccount(ctx context.Context) (Response, error) {
	if err := c.requireSecret(); err != nil {
		return nil, err
	}
	return c.get(ctx, "account", map[string]string{"api_secret": c.apiSecret})
}

// GetForms returns all forms.
func (c *Client) GetForms(ctx context.Context) (Response, error) {
	return c.get(ctx, "forms", nil)
}

// GetSequences returns all sequences.
func (c *Client) GetSequences(ctx context.Context) (Response, error) {
	return c.get(ctx, "sequences", nil)
}

// GetTags returns all tags.
func (c *Client) GetTags(ctx context.Context) (Response, error) {
	return c.get(ctx, "tags", nil)
}

// GetCustomFields returns all custom fields.
func (c *Client) GetCustomFields(ctx context.Context) (Response, error) {
	return c.get(ctx, "custom_fields", nil)
}

// GetSubscribers lists subscribers. Empty filter values are omitted from
// the request.
func (c *Client) GetSubscribers(ctx context.Context, filters map[string]string) (Response, error) {
	if err := c.requireSecret(); err != nil {
		return nil, err
	}

	params := map[string]string{"api_secret": c.apiSecret}
	for key, value := range filters {
		if value != "" {
			params[key] = value
		}
	}
	return c.get(ctx, "subscribers", params)
}

// GetSubscriber looks up a subscriber by email address.
func (c *Client) GetSubscriber(ctx context.Context, email string) (Response, error) {
	if err := c.validateSubscriberRequest(email); err != nil {
		return nil, err
	}
	return c.GetSubscribers(ctx, map[string]string{"email_address": email})
}

// SubscribeToForm subscribes an email address to a form. Optional members
// (first name, fields, tags) are omitted from the payload when empty
// rather than sent as empty values.
func (c *Client) SubscribeToForm(ctx context.Context, formID int64, email, firstName string, fields map[string]string, tags []int64) (Response, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	data := map[string]any{
		"api_key": c.apiKey,
		"email":   email,
	}
	if firstName != "" {
		data["first_name"] = firstName
	}
	if len(fields) > 0 {
		data["fields"] = fields
	}
	if len(tags) > 0 {
		data["tags"] = tags
	}

	return c.post(ctx, fmt.Sprintf("forms/%d/subscribe", formID), data)
}

// GetFormSubscriptions lists subscriptions to a form.
func (c *Client) GetFormSubscriptions(ctx context.Context, formID int64, sortOrder, subscriberState string, page int) (Response, error) {
	if err := c.requireSecret(); err != nil {
		return nil, err
	}
	return c.get(ctx, fmt.Sprintf("forms/%d/subscriptions", formID), map[string]string{
		"api_secret":       c.apiSecret,
		"sort_order":       sortOrder,
		"subscriber_state": subscriberState,
		"page":             strconv.Itoa(page),
	})
}

// UpdateSubscriber updates a subscriber by its Kit id. Empty arguments
// are left out of the request.
func (c *Client) UpdateSubscriber(ctx context.Context, subscriberID int64, firstName, emailAddress string, fields map[string]string) (Response, error) {
	if err := c.requireSecret(); err != nil {
		return nil, err
	}

	data := map[string]any{"api_secret": c.apiSecret}
	if firstName != "" {
		data["first_name"] = firstName
	}
	if emailAddress != "" {
		data["email_address"] = emailAddress
	}
	if len(fields) > 0 {
		if len(fields) > maxCustomFields {
			return nil, &APIError{Code: ErrCodeTooManyFields, Message: fmt.Sprintf("maximum of %d custom fields allowed", maxCustomFields)}
		}
		data["fields"] = fields
	}

	return c.put(ctx, fmt.Sprintf("subscribers/%d", subscriberID), data)
}

// UpdateSubscriberByEmail resolves the subscriber id for email and updates
// the record.
func (c *Client) UpdateSubscriberByEmail(ctx context.Context, email, firstName, newEmail string, fields map[string]string) (Response, error) {
	if err := c.validateSubscriberRequest(email); err != nil {
		return nil, err
	}

	resp, err := c.GetSubscriber(ctx, email)
	if err != nil {
		return nil, err
	}

	subscriberID, ok := subscriberIDFromResponse(resp)
	if !ok {
		return nil, &APIError{Code: ErrCodeSubscriberNotFound, Message: fmt.Sprintf("subscriber with email %s not found", email)}
	}

	return c.UpdateSubscriber(ctx, subscriberID, firstName, newEmail, fields)
}

// Unsubscribe unsubscribes an email address.
func (c *Client) Unsubscribe(ctx context.Context, email string) (Response, error) {
	if err := c.validateSubscriberRequest(email); err != nil {
		return nil, err
	}
	return c.put(ctx, "unsubscribe", map[string]any{
		"api_secret": c.apiSecret,
		"email":      email,
	})
}

// TagSubscriber subscribes an email address to a tag.
func (c *Client) TagSubscriber(ctx context.Context, tagID int64, email, firstName string, fields map[string]string) (Response, error) {
	if err := c.validateSubscriberRequest(email); err != nil {
		return nil, err
	}

	data := map[string]any{
		"api_secret": c.apiSecret,
		"email":      email,
	}
	if firstName != "" {
		data["first_name"] = firstName
	}
	if len(fields) > 0 {
		data["fields"] = fields
	}

	return c.post(ctx, fmt.Sprintf("tags/%d/subscribe", tagID), data)
}

// RemoveTagFromSubscriber removes a tag from a subscriber by Kit id.
func (c *Client) RemoveTagFromSubscriber(ctx context.Context, tagID, subscriberID int64) (Response, error) {
	if err := c.requireSecret(); err != nil {
		return nil, err
	}
	return c.delete(ctx, fmt.Sprintf("subscribers/%d/tags/%d", subscriberID, tagID), map[string]any{
		"api_secret": c.apiSecret,
	})
}

// RemoveTagFromSubscriberByEmail removes a tag from a subscriber by email.
func (c *Client) RemoveTagFromSubscriberByEmail(ctx context.Context, tagID int64, email string) (Response, error) {
	if err := c.validateSubscriberRequest(email); err != nil {
		return nil, err
	}
	return c.post(ctx, fmt.Sprintf("tags/%d/unsubscribe", tagID), map[string]any{
		"api_secret": c.apiSecret,
		"email":      email,
	})
}

func (c *Client) get(ctx context.Context, endpoint string, params map[string]string) (Response, error) {
	// The key is only required when the caller did not authenticate with
	// the secret.
	if _, hasSecret := params["api_secret"]; !hasSecret {
		if c.apiKey == "" {
			return nil, &APIError{Code: ErrCodeNoAPIKey, Message: "missing Kit API key"}
		}
		if params == nil {
			params = make(map[string]string)
		}
		params["api_key"] = c.apiKey
	}

	query := make(map[string]any, len(params))
	for key, value := range params {
		query[key] = value
	}
	return c.request(ctx, http.MethodGet, endpoint, query)
}

func (c *Client) post(ctx context.Context, endpoint string, data map[string]any) (Response, error) {
	return c.request(ctx, http.MethodPost, endpoint, data)
}

func (c *Client) put(ctx context.Context, endpoint string, data map[string]any) (Response, error) {
	return c.request(ctx, http.MethodPut, endpoint, data)
}

func (c *Client) delete(ctx context.Context, endpoint string, data map[string]any) (Response, error) {
	return c.request(ctx, http.MethodDelete, endpoint, data)
}

// request executes one HTTP call. GET parameters go in the query string;
// every other verb sends a JSON body. A response is accepted only when
// its status is 2xx or 3xx.
func (c *Client) request(ctx context.Context, method, endpoint string, params map[string]any) (Response, error) {
	reqURL := c.baseURL + endpoint

	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			query := url.Values{}
			for key, value := range params {
				query.Set(key, fmt.Sprint(value))
			}
			reqURL += "?" + query.Encode()
		}
	} else {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding kit request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating kit request: %w", err)
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport-level failure (DNS, TLS, timeout), distinct from an
		// API error response.
		return nil, fmt.Errorf("kit %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		c.logger.Warn("kit api request failed",
			"method", method,
			"endpoint", endpoint,
			"status", resp.StatusCode,
		)
		return nil, &APIError{Code: ErrCodeAPI, StatusCode: resp.StatusCode, Message: "API request failed"}
	}

	decoded := make(Response)
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decoding kit response: %w", err)
	}
	return decoded, nil
}

func (c *Client) requireSecret() error {
	if c.apiSecret == "" {
		return &APIError{Code: ErrCodeNoAPISecret, Message: "missing Kit API secret"}
	}
	return nil
}

func (c *Client) validateSubscriberRequest(email string) error {
	if err := c.requireSecret(); err != nil {
		return err
	}
	return validateEmail(email)
}

func validateEmail(email string) error {
	if !domain.ValidEmail(email) {
		return &APIError{Code: ErrCodeNoEmail, Message: fmt.Sprintf("invalid email address format: %s", email)}
	}
	return nil
}

// subscriberIDFromResponse digs the first subscriber id out of a
// subscribers listing response.
func subscriberIDFromResponse(resp Response) (int64, bool) {
	subscribers, ok := resp["subscribers"].([]any)
	if !ok || len(subscribers) == 0 {
		return 0, false
	}
	first, ok := subscribers[0].(map[string]any)
	if !ok {
		return 0, false
	}
	id, ok := first["id"].(float64)
	if !ok {
		return 0, false
	}
	return int64(id), true
}
