package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ForwardResponse is the normalized outcome of an internal processing call,
// regardless of whether it travelled over HTTP or stayed in process.
type ForwardResponse struct {
	StatusCode   int
	Success      bool
	RedirectURL  string
	ErrorCode    string
	ErrorMessage string
}

// SubmissionForwarder carries a validated submission from the public edge to
// the internal processor.
type SubmissionForwarder interface {
	Forward(ctx context.Context, request SubmitRequest) (ForwardResponse, error)
}

// LocalForwarder calls the processor in process. This is the single-binary
// deployment mode.
type LocalForwarder struct {
	processor *InternalSubmitHandlers
}

// NewLocalForwarder wraps the given processor.
func NewLocalForwarder(processor *InternalSubmitHandlers) *LocalForwarder {
	return &LocalForwarder{processor: processor}
}

// Forward runs the processor directly and maps its outcome.
func (forwarder *LocalForwarder) Forward(_ context.Context, request SubmitRequest) (ForwardResponse, error) {
	result, rejection := forwarder.processor.Process(request)
	if rejection != nil {
		return ForwardResponse{
			StatusCode:   rejection.StatusCode,
			ErrorCode:    rejection.ErrorCode,
			ErrorMessage: rejection.ErrorMessage,
		}, nil
	}
	return ForwardResponse{
		StatusCode:  200,
		Success:     true,
		RedirectURL: result.RedirectURL,
	}, nil
}

// HTTPForwarder posts submissions to a remote processor endpoint, carrying the
// shared secret header. This is the split-deployment mode where the ingest edge
// and the processor run as separate services.
type HTTPForwarder struct {
	endpointURL    string
	internalSecret string
	httpClient     *http.Client
}

// NewHTTPForwarder builds a forwarder targeting the given internal endpoint.
func NewHTTPForwarder(endpointURL string, internalSecret string, requestTimeout time.Duration) *HTTPForwarder {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	return &HTTPForwarder{
		endpointURL:    strings.TrimSpace(endpointURL),
		internalSecret: strings.TrimSpace(internalSecret),
		httpClient:     &http.Client{Timeout: requestTimeout},
	}
}

// Forward serializes the request and relays the processor's answer. Transport
// failures are returned as errors; processor rejections are not errors, they
// are relayed in the response.
func (forwarder *HTTPForwarder) Forward(ctx context.Context, request SubmitRequest) (ForwardResponse, error) {
	body, marshalErr := json.Marshal(request)
	if marshalErr != nil {
		return ForwardResponse{}, fmt.Errorf("forward: encode request: %w", marshalErr)
	}

	httpRequest, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, forwarder.endpointURL, bytes.NewReader(body))
	if requestErr != nil {
		return ForwardResponse{}, fmt.Errorf("forward: build request: %w", requestErr)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set(HeaderInternalSecret, forwarder.internalSecret)

	httpResponse, sendErr := forwarder.httpClient.Do(httpRequest)
	if sendErr != nil {
		return ForwardResponse{}, fmt.Errorf("forward: post to %s: %w", forwarder.endpointURL, sendErr)
	}
	defer func() {
		_ = httpResponse.Body.Close()
	}()

	var decoded struct {
		Success     bool   `json:"success"`
		RedirectURL string `json:"redirectUrl"`
		Error       string `json:"error"`
		Code        string `json:"code"`
	}
	if decodeErr := json.NewDecoder(httpResponse.Body).Decode(&decoded); decodeErr != nil {
		return ForwardResponse{}, fmt.Errorf("forward: decode response: %w", decodeErr)
	}

	if httpResponse.StatusCode == 200 && decoded.Success {
		return ForwardResponse{
			StatusCode:  200,
			Success:     true,
			RedirectURL: decoded.RedirectURL,
		}, nil
	}
	return ForwardResponse{
		StatusCode:   httpResponse.StatusCode,
		ErrorCode:    decoded.Code,
		ErrorMessage: decoded.Error,
	}, nil
}
