package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	contentTypeHeaderNameConstant         = "Content-Type"
	acceptHeaderNameConstant              = "Accept"
	jsonMediaTypeConstant                 = "application/json"
	defaultTimeoutSecondsConstant         = 30
	endpointMissingMessageConstant        = "remote endpoint must be provided"
	payloadEncodeErrorTemplateConstant    = "unable to encode payload for %s: %w"
	requestCreationErrorTemplateConstant  = "unable to create %s request for %s: %w"
	requestExecutionErrorTemplateConstant = "request execution failed: %w"
	responseReadErrorTemplateConstant     = "unable to read response from %s: %w"
	unexpectedStatusCodeTemplateConstant  = "unexpected status code %d for %s %s: %s"
	remoteRequestStartedMessageConstant   = "remote_request_started"
	remoteRequestCompletedMessageConstant = "remote_request_completed"
	remoteRequestFailedMessageConstant    = "remote_request_failed"
	endpointLogFieldNameConstant          = "endpoint"
	statusCodeLogFieldNameConstant        = "status_code"
	durationLogFieldNameConstant          = "duration"
)

// ErrEndpointMissing indicates that PostJSON was called without a target.
var ErrEndpointMissing = errors.New(endpointMissingMessageConstant)

// HTTPClient abstracts the Do method of http.Client for easier testing.
type HTTPClient interface {
	Do(request *http.Request) (*http.Response, error)
}

// Configuration describes the remote collaborators and the request timeout.
type Configuration struct {
	WebhookBaseURL string `mapstructure:"webhook_base_url"`
	BotBaseURL     string `mapstructure:"bot_base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// UnexpectedStatusError reports a non-2xx response.
type UnexpectedStatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

// Error describes the response.
func (statusError UnexpectedStatusError) Error() string {
	return fmt.Sprintf(unexpectedStatusCodeTemplateConstant, statusError.StatusCode, http.MethodPost, statusError.Endpoint, statusError.Body)
}

// JSONClient posts JSON payloads to webhooks and remote coordinators.
type JSONClient struct {
	logger     *zap.Logger
	httpClient HTTPClient
}

// NewJSONClient constructs a client. A nil httpClient yields an http.Client bounded by the configured timeout.
func NewJSONClient(logger *zap.Logger, httpClient HTTPClient, configuration Configuration) *JSONClient {
	resolvedLogger := logger
	if resolvedLogger == nil {
		resolvedLogger = zap.NewNop()
	}

	resolvedClient := httpClient
	if resolvedClient == nil {
		timeoutSeconds := configuration.TimeoutSeconds
		if timeoutSeconds <= 0 {
			timeoutSeconds = defaultTimeoutSecondsConstant
		}
		resolvedClient = &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}
	}

	return &JSONClient{logger: resolvedLogger, httpClient: resolvedClient}
}

// PostJSON sends payload as JSON and decodes the response body. Bodies that are not JSON are
// returned as a string and an empty body yields nil.
func (client *JSONClient) PostJSON(executionContext context.Context, endpoint string, payload any) (any, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if len(trimmedEndpoint) == 0 {
		return nil, ErrEndpointMissing
	}

	encodedPayload, encodeError := json.Marshal(payload)
	if encodeError != nil {
		return nil, fmt.Errorf(payloadEncodeErrorTemplateConstant, trimmedEndpoint, encodeError)
	}

	httpRequest, requestCreationError := http.NewRequestWithContext(executionContext, http.MethodPost, trimmedEndpoint, bytes.NewReader(encodedPayload))
	if requestCreationError != nil {
		return nil, fmt.Errorf(requestCreationErrorTemplateConstant, http.MethodPost, trimmedEndpoint, requestCreationError)
	}
	httpRequest.Header.Set(contentTypeHeaderNameConstant, jsonMediaTypeConstant)
	httpRequest.Header.Set(acceptHeaderNameConstant, jsonMediaTypeConstant)

	client.logger.Debug(remoteRequestStartedMessageConstant, zap.String(endpointLogFieldNameConstant, trimmedEndpoint))
	startTime := time.Now()

	httpResponse, requestError := client.httpClient.Do(httpRequest)
	if requestError != nil {
		client.logger.Warn(remoteRequestFailedMessageConstant, zap.String(endpointLogFieldNameConstant, trimmedEndpoint), zap.Error(requestError))
		return nil, fmt.Errorf(requestExecutionErrorTemplateConstant, requestError)
	}
	defer httpResponse.Body.Close()

	responseBody, readError := io.ReadAll(httpResponse.Body)
	if readError != nil {
		return nil, fmt.Errorf(responseReadErrorTemplateConstant, trimmedEndpoint, readError)
	}

	if httpResponse.StatusCode < http.StatusOK || httpResponse.StatusCode >= http.StatusMultipleChoices {
		statusError := UnexpectedStatusError{
			Endpoint:   trimmedEndpoint,
			StatusCode: httpResponse.StatusCode,
			Body:       strings.TrimSpace(string(responseBody)),
		}
		client.logger.Warn(remoteRequestFailedMessageConstant,
			zap.String(endpointLogFieldNameConstant, trimmedEndpoint),
			zap.Int(statusCodeLogFieldNameConstant, httpResponse.StatusCode),
		)
		return nil, statusError
	}

	client.logger.Debug(remoteRequestCompletedMessageConstant,
		zap.String(endpointLogFieldNameConstant, trimmedEndpoint),
		zap.Int(statusCodeLogFieldNameConstant, httpResponse.StatusCode),
		zap.Duration(durationLogFieldNameConstant, time.Since(startTime)),
	)
	return decodeResponseBody(responseBody), nil
}

func decodeResponseBody(responseBody []byte) any {
	trimmed := bytes.TrimSpace(responseBody)
	if len(trimmed) == 0 {
		return nil
	}
	var decoded any
	if decodeError := json.Unmarshal(trimmed, &decoded); decodeError != nil {
		return string(trimmed)
	}
	return decoded
}
