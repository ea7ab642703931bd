package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/payq/config"
	"github.com/blnkfinance/payq/internal/request"
)

const (
	versionHeader     = "Stripe-Version"
	idempotencyHeader = "Idempotency-Key"
)

// Processor is the subset of the payment processor API payq depends on.
type Processor interface {
	CreateOutboundPayment(ctx context.Context, params OutboundPaymentParams, idempotencyKey string) (*OutboundPayment, error)
	GetOutboundPayment(ctx context.Context, id string) (*OutboundPayment, error)
}

type FinancialAccountRef struct {
	FinancialAccount string `json:"financial_account"`
	BalanceType      string `json:"balance_type"`
}

type RecipientRef struct {
	Recipient string `json:"recipient"`
}

type Method struct {
	BankAccount string `json:"bank_account"`
}

type Amount struct {
	Value    int64  `json:"value"`
	Currency string `json:"currency"`
}

type MoneyMovementAmounts struct {
	Source Amount `json:"source"`
}

type RecipientNotification struct {
	Setting string `json:"setting"`
}

// OutboundPaymentParams is the request body for creating an outbound payment.
type OutboundPaymentParams struct {
	From                  FinancialAccountRef   `json:"from"`
	To                    RecipientRef          `json:"to"`
	Method                Method                `json:"method"`
	MoneyMovementAmounts  MoneyMovementAmounts  `json:"money_movement_amounts"`
	RecipientNotification RecipientNotification `json:"recipient_notification"`
	Description           string                `json:"description,omitempty"`
	Metadata              map[string]string     `json:"metadata,omitempty"`
}

// OutboundPayment is the processor's record of a money movement.
type OutboundPayment struct {
	ID       string            `json:"id"`
	Object   string            `json:"object"`
	Status   string            `json:"status"`
	Amount   Amount            `json:"amount"`
	Metadata map[string]string `json:"metadata"`
	Created  string            `json:"created"`
}

// NewOutboundPaymentParams builds the request for sending amount (minor units) from a platform
// financial account to a recipient account.
func NewOutboundPaymentParams(financialAccount, recipient string, amount int64, currency string, metadata map[string]string) OutboundPaymentParams {
	return OutboundPaymentParams{
		From:                  FinancialAccountRef{FinancialAccount: financialAccount, BalanceType: "storage"},
		To:                    RecipientRef{Recipient: recipient},
		Method:                Method{BankAccount: "automatic"},
		MoneyMovementAmounts:  MoneyMovementAmounts{Source: Amount{Value: amount, Currency: currency}},
		RecipientNotification: RecipientNotification{Setting: "none"},
		Description:           "payq outbound payment",
		Metadata:              metadata,
	}
}

// Client talks to the processor's REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
	apiVersion string
}

func NewClient(cfg config.ProcessorConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		baseURL:    cfg.BaseURL,
		secretKey:  cfg.SecretKey,
		apiVersion: cfg.APIVersion,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		payload, jsonErr := request.ToJsonReq(body)
		if jsonErr != nil {
			return nil, errors.Wrap(jsonErr, "encode processor request")
		}
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return nil, errors.Wrap(err, "build processor request")
	}

	req.Header.Set("Authorization", request.BearerAuth(c.secretKey))
	if c.apiVersion != "" {
		req.Header.Set(versionHeader, c.apiVersion)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	_, err := request.CallWithClient(c.httpClient, req, out)
	if err == nil {
		return nil
	}

	var statusErr *request.StatusError
	if errors.As(err, &statusErr) {
		return parseError(statusErr.StatusCode, statusErr.Body)
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return errors.Wrap(err, "decode processor response")
	}
	return errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
}

// CreateOutboundPayment creates a payment. The processor collapses requests that share an
// idempotency key into a single payment.
func (c *Client) CreateOutboundPayment(ctx context.Context, params OutboundPaymentParams, idempotencyKey string) (*OutboundPayment, error) {
	ctx, span := otel.Tracer("payq.processor").Start(ctx, "Create outbound payment")
	defer span.End()
	span.SetAttributes(attribute.String("payq.idempotency_key", idempotencyKey))

	req, err := c.newRequest(ctx, http.MethodPost, "/outbound_payments", params)
	if err != nil {
		return nil, err
	}
	req.Header.Set(idempotencyHeader, idempotencyKey)

	var payment OutboundPayment
	if err := c.do(req, &payment); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if payment.ID == "" {
		return nil, ErrMissingPaymentID
	}

	span.SetAttributes(attribute.String("payq.external_payment_id", payment.ID))
	return &payment, nil
}

func (c *Client) GetOutboundPayment(ctx context.Context, id string) (*OutboundPayment, error) {
	ctx, span := otel.Tracer("payq.processor").Start(ctx, "Get outbound payment")
	defer span.End()

	req, err := c.newRequest(ctx, http.MethodGet, "/outbound_payments/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var payment OutboundPayment
	if err := c.do(req, &payment); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &payment, nil
}
