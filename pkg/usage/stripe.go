package usage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v84"
)

// defaultMeterEventName is the billing meter the recorder reports against.
const defaultMeterEventName = "conversation_seconds"

// StripeMeterRecorder emits one billing meter event per closed session,
// metering conversation seconds against the user's Stripe customer.
type StripeMeterRecorder struct {
	client    *stripe.Client
	eventName string
}

// NewStripeMeterRecorder builds a recorder with its own Stripe client.
// eventName may be empty to use the default meter.
func NewStripeMeterRecorder(apiKey, eventName string) (*StripeMeterRecorder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("usage: stripe API key must not be empty")
	}
	if eventName == "" {
		eventName = defaultMeterEventName
	}
	return &StripeMeterRecorder{
		client:    stripe.NewClient(apiKey),
		eventName: eventName,
	}, nil
}

func (r *StripeMeterRecorder) Record(ctx context.Context, s Summary) error {
	seconds := int64(s.Duration.Seconds())
	if seconds < 0 {
		seconds = 0
	}
	// Identifier makes retries idempotent on Stripe's side.
	_, err := r.client.V1BillingMeterEvents.Create(ctx, &stripe.BillingMeterEventCreateParams{
		EventName:  stripe.String(r.eventName),
		Identifier: stripe.String(s.SessionID),
		Payload: map[string]string{
			"stripe_customer_id": s.UserID,
			"value":              strconv.FormatInt(seconds, 10),
		},
	})
	if err != nil {
		return fmt.Errorf("usage: meter event for session %s: %w", s.SessionID, err)
	}
	return nil
}
