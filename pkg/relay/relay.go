package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/twinmind/pkg/model"
	"github.com/m-mizutani/twinmind/pkg/utils/logging"
)

const (
	msgUserRequired  = "User ID is required"
	msgNetworkPrefix = "An error occurred: "
)

// Relay turns store and search intents into calls to a remote memory
// service and normalizes the answers. It holds no mutable state and is
// safe for concurrent use.
type Relay struct {
	cfg     Config
	builder builder
	client  *http.Client
}

// Option is a functional option for Relay
type Option func(*Relay)

// WithHTTPClient replaces the HTTP client. Config.Timeout is ignored when
// a client is given.
func WithHTTPClient(client *http.Client) Option {
	return func(x *Relay) {
		x.client = client
	}
}

// New creates a Relay for cfg
func New(cfg Config, opts ...Option) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid relay config")
	}

	b, err := newBuilder(cfg.Variant)
	if err != nil {
		return nil, err
	}

	x := &Relay{
		cfg:     cfg.clone(),
		builder: b,
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.client == nil {
		x.client = &http.Client{Timeout: cfg.Timeout}
	}

	return x, nil
}

// Config returns a copy of the relay configuration
func (x *Relay) Config() Config {
	return x.cfg.clone()
}

// Variant returns the backend variant the relay targets
func (x *Relay) Variant() model.Variant {
	return x.cfg.Variant
}

// BuildRequest constructs the outbound request for an operation without
// sending it.
func (x *Relay) BuildRequest(op model.Operation, userID, text string) (*Request, error) {
	if userID == "" {
		return nil, &model.Failure{Kind: model.FailureValidation, Message: msgUserRequired}
	}
	if err := op.Validate(); err != nil {
		return nil, &model.Failure{Kind: model.FailureValidation, Message: err.Error()}
	}

	return x.builder.build(op, userID, text)
}

// Execute performs one operation against the memory service. It makes at
// most one outbound call and never returns a nil Result; every error is
// reported as Result.Failure.
func (x *Relay) Execute(ctx context.Context, op model.Operation, userID, text string) *model.Result {
	result := &model.Result{
		RequestID: model.NewRequestID(),
		Operation: op,
	}
	logger := logging.From(ctx).With(
		"request_id", result.RequestID,
		"operation", op,
		"variant", x.cfg.Variant,
	)

	req, err := x.BuildRequest(op, userID, text)
	if err != nil {
		var failure *model.Failure
		if errors.As(err, &failure) {
			result.Failure = failure
		} else {
			result.Failure = &model.Failure{Kind: model.FailureValidation, Message: err.Error()}
		}
		logger.Warn("rejected memory request", "error", result.Failure.Message)
		return result
	}

	logger.Debug("sending memory request", "method", req.Method, "url", req.URL(x.cfg.BaseURL))

	resp, err := x.send(ctx, req)
	if err != nil {
		result.Failure = &model.Failure{
			Kind:    model.FailureNetwork,
			Message: msgNetworkPrefix + err.Error(),
		}
		logger.Warn("memory request failed", "error", err)
		return result
	}

	if !resp.OK() {
		result.Failure = &model.Failure{
			Kind:       model.FailureRemote,
			Message:    fmt.Sprintf("API Error: %d %s", resp.StatusCode, resp.StatusText()),
			StatusCode: resp.StatusCode,
			Detail:     resp.errorDetail(),
		}
		logger.Warn("memory service returned error",
			"status", resp.StatusCode,
			"detail", result.Failure.Detail,
		)
		return result
	}

	display, err := displayText(x.cfg.Variant, op, resp.Body)
	if err != nil {
		result.Failure = &model.Failure{
			Kind:       model.FailureNetwork,
			Message:    msgNetworkPrefix + err.Error(),
			StatusCode: resp.StatusCode,
		}
		logger.Warn("malformed memory service response", "status", resp.StatusCode, "error", err)
		return result
	}

	result.Success = &model.Success{
		StatusCode:  resp.StatusCode,
		RawPayload:  resp.Body,
		DisplayText: display,
	}
	logger.Debug("memory request completed", "status", resp.StatusCode)

	return result
}

// Do sends a prepared request with credentials and extra headers attached.
// Non-2xx responses are returned as is; only transport failures are errors.
func (x *Relay) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, err := x.send(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send memory request",
			goerr.V("method", req.Method),
			goerr.V("path", req.Path))
	}
	return resp, nil
}

func (x *Relay) send(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL(x.cfg.BaseURL), body)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if x.cfg.Credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+x.cfg.Credential)
	}
	for name, value := range x.cfg.ExtraHeaders {
		httpReq.Header.Set(name, value)
	}

	httpResp, err := x.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Body:       data,
	}, nil
}
