package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JonasBergmann/CompanionDeck/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// StripeClient is a minimal client for the handful of Stripe resources this
// application touches: customers, checkout sessions and subscriptions.
// Requests are form-encoded with bearer auth, responses are JSON.
type StripeClient struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

type StripeCustomer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type StripeCheckoutSession struct {
	ID             string `json:"id"`
	URL            string `json:"url"`
	CustomerID     string `json:"customer"`
	SubscriptionID string `json:"subscription"`
	PaymentStatus  string `json:"payment_status"`
}

type StripeSubscription struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
}

func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FindOrCreateCustomer resolves an email to the provider's customer record,
// creating one if none exists yet (list-by-email, limit 1, then create).
func (c *StripeClient) FindOrCreateCustomer(ctx context.Context, email, name string) (*StripeCustomer, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("customer email is required")
	}

	var list struct {
		Data []StripeCustomer `json:"data"`
	}
	query := url.Values{}
	query.Set("email", email)
	query.Set("limit", "1")
	if err := c.get(ctx, "/customers?"+query.Encode(), &list); err != nil {
		return nil, err
	}
	if len(list.Data) > 0 {
		return &list.Data[0], nil
	}

	form := url.Values{}
	form.Set("email", email)
	if strings.TrimSpace(name) != "" {
		form.Set("name", strings.TrimSpace(name))
	}
	var customer StripeCustomer
	if err := c.postForm(ctx, "/customers", form, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetCustomer retrieves a customer by id, used to recover an email address for
// events that do not carry one directly.
func (c *StripeClient) GetCustomer(ctx context.Context, customerID string) (*StripeCustomer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, errors.New("customer id is required")
	}
	var customer StripeCustomer
	if err := c.get(ctx, "/customers/"+url.PathEscape(customerID), &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreateCheckoutSession starts a subscription-mode checkout for one price.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (*StripeCheckoutSession, error) {
	if strings.TrimSpace(customerID) == "" || strings.TrimSpace(priceID) == "" {
		return nil, errors.New("customer id and price id are required")
	}

	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("customer", strings.TrimSpace(customerID))
	form.Set("line_items[0][price]", strings.TrimSpace(priceID))
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)

	var session StripeCheckoutSession
	if err := c.postForm(ctx, "/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetCheckoutSession retrieves a checkout session, used by the fallback to
// recover the subscription reference after a success redirect.
func (c *StripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*StripeCheckoutSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("checkout session id is required")
	}
	var session StripeCheckoutSession
	if err := c.get(ctx, "/checkout/sessions/"+url.PathEscape(sessionID), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CancelSubscriptionAtPeriodEnd marks the subscription for termination at the
// end of the current billing period. The provider later emits the deletion
// event that actually clears the local subscription reference.
func (c *StripeClient) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*StripeSubscription, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, errors.New("subscription id is required")
	}

	form := url.Values{}
	form.Set("cancel_at_period_end", "true")

	var sub StripeSubscription
	if err := c.postForm(ctx, "/subscriptions/"+url.PathEscape(subscriptionID), form, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *StripeClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.APIBaseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *StripeClient) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.APIBaseURL, "/")+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *StripeClient) do(req *http.Request, out interface{}) error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("STRIPE_SECRET_KEY is not configured")
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stripe request %s failed: status=%d body=%s", req.URL.Path, resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
