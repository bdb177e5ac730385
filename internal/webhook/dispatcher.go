package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/formvibe/formvibe/internal/model"
)

const (
	// EventSubmissionCreated is emitted once per persisted submission.
	EventSubmissionCreated = "submission.created"

	headerSignature = "X-FormVibe-Signature"
	headerEventType = "X-FormVibe-Event"
	userAgentValue  = "FormVibe-Webhooks/1.0"

	defaultDeliveryTimeout = 3 * time.Second
)

// Event is the payload delivered to customer-registered webhook URLs.
type Event struct {
	Event      string          `json:"event"`
	FormID     string          `json:"formId"`
	Submission EventSubmission `json:"submission"`
}

// EventSubmission is the submission view embedded in an Event.
type EventSubmission struct {
	ID        string                   `json:"id"`
	Payload   map[string]string        `json:"payload"`
	Metadata  model.SubmissionMetadata `json:"metadata"`
	CreatedAt time.Time                `json:"createdAt"`
}

// NewSubmissionCreatedEvent builds the delivery payload for a persisted submission.
func NewSubmissionCreatedEvent(submission model.Submission) Event {
	return Event{
		Event:  EventSubmissionCreated,
		FormID: submission.FormID,
		Submission: EventSubmission{
			ID:        submission.ID,
			Payload:   submission.ParsedPayload(),
			Metadata:  submission.ParsedMetadata(),
			CreatedAt: submission.CreatedAt,
		},
	}
}

// Sign computes the hex HMAC-SHA256 signature of the serialized body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Dispatcher delivers signed events to webhook destinations. Delivery is
// best-effort and at-most-once: every error is logged and swallowed, and no
// retry or dead-letter handling exists.
type Dispatcher struct {
	logger          *zap.Logger
	httpClient      *http.Client
	deliveryTimeout time.Duration
}

// NewDispatcher creates a Dispatcher with the given per-delivery timeout.
func NewDispatcher(logger *zap.Logger, deliveryTimeout time.Duration) *Dispatcher {
	if deliveryTimeout <= 0 {
		deliveryTimeout = defaultDeliveryTimeout
	}
	return &Dispatcher{
		logger:          logger,
		httpClient:      &http.Client{},
		deliveryTimeout: deliveryTimeout,
	}
}

// Dispatch fans the event out to every webhook concurrently and returns
// immediately; the caller's response path never waits for delivery. The
// detached goroutine joins all attempts so each one runs to completion, but
// individual failures are independent and ignored.
func (dispatcher *Dispatcher) Dispatch(webhooks []model.Webhook, event Event) {
	if len(webhooks) == 0 {
		return
	}
	go dispatcher.deliverAll(webhooks, event)
}

// DispatchAndWait fans the event out concurrently and blocks until every
// delivery settles. Used by tests and callers that need a synchronization point.
func (dispatcher *Dispatcher) DispatchAndWait(webhooks []model.Webhook, event Event) {
	dispatcher.deliverAll(webhooks, event)
}

func (dispatcher *Dispatcher) deliverAll(webhooks []model.Webhook, event Event) {
	var deliveries sync.WaitGroup
	for _, destination := range webhooks {
		deliveries.Add(1)
		go func(destination model.Webhook) {
			defer deliveries.Done()
			if deliverErr := dispatcher.Deliver(context.Background(), destination, event); deliverErr != nil {
				dispatcher.logger.Warn("webhook_delivery_failed",
					zap.Error(deliverErr),
					zap.String("webhook_id", destination.ID),
					zap.String("form_id", destination.FormID),
					zap.String("url", destination.URL),
				)
			}
		}(destination)
	}
	deliveries.Wait()
}

// Deliver performs a single signed delivery attempt bounded by the configured
// timeout. Non-2xx responses count as failures.
func (dispatcher *Dispatcher) Deliver(ctx context.Context, destination model.Webhook, event Event) error {
	body, marshalErr := json.Marshal(event)
	if marshalErr != nil {
		return fmt.Errorf("webhook: encode event: %w", marshalErr)
	}

	deliveryCtx, cancel := context.WithTimeout(ctx, dispatcher.deliveryTimeout)
	defer cancel()

	request, requestErr := http.NewRequestWithContext(deliveryCtx, http.MethodPost, destination.URL, bytes.NewReader(body))
	if requestErr != nil {
		return fmt.Errorf("webhook: build request: %w", requestErr)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(headerSignature, Sign(body, destination.Secret))
	request.Header.Set(headerEventType, event.Event)
	request.Header.Set("User-Agent", userAgentValue)

	response, sendErr := dispatcher.httpClient.Do(request)
	if sendErr != nil {
		return fmt.Errorf("webhook: deliver to %s: %w", destination.URL, sendErr)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("webhook: deliver to %s: status %d", destination.URL, response.StatusCode)
	}
	return nil
}
