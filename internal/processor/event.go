package processor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Money movement event types delivered by the processor.
const (
	EventOutboundPaymentCreated   = "v2.money_management.outbound_payment.created"
	EventOutboundPaymentPosted    = "v2.money_management.outbound_payment.posted"
	EventOutboundPaymentReturned  = "v2.money_management.outbound_payment.returned"
	EventOutboundTransferCanceled = "v2.money_management.outbound_transfer.canceled"
	EventOutboundTransferFailed   = "v2.money_management.outbound_transfer.failed"
)

const moneyManagementPrefix = "v2.money_management."

// ErrMalformedEvent is returned when a verified payload is not a usable event.
var ErrMalformedEvent = errors.New("malformed processor event")

type RelatedObject struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Event is a thin webhook notification. The payment it refers to is fetched separately.
type Event struct {
	ID            string         `json:"id"`
	Object        string         `json:"object"`
	Type          string         `json:"type"`
	Created       time.Time      `json:"created"`
	RelatedObject *RelatedObject `json:"related_object"`
	Livemode      bool           `json:"livemode"`
}

// ParseEvent decodes a webhook body. Signature verification must happen first.
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("%w: id and type are required", ErrMalformedEvent)
	}
	return &event, nil
}

// PaymentID returns the id of the outbound payment the event refers to, if any.
func (e *Event) PaymentID() string {
	if e.RelatedObject == nil {
		return ""
	}
	return e.RelatedObject.ID
}

// IsMoneyMovement reports whether the event concerns an outbound payment or transfer.
func (e *Event) IsMoneyMovement() bool {
	return strings.HasPrefix(e.Type, moneyManagementPrefix)
}
