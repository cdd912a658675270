// Package transport performs timed HTTP submission to the authority's
// service and normalizes transport and parse failures into a typed
// outcome.
//
// The client holds no cross-request mutable state beyond its immutable
// configuration; it is safe for concurrent use from multiple orchestration
// instances. Demo-environment credentials are answered by the in-process
// [Responder] and never produce network I/O.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirosfoundation/go-etims/pkg/device"
	"github.com/sirosfoundation/go-etims/pkg/protocol"
	"github.com/sirosfoundation/go-etims/pkg/signer"
)

// DefaultTimeout is the fixed upper bound on request duration. Exceeding
// it yields a timeout transport error and the rollback path.
const DefaultTimeout = 120 * time.Second

// Submitter abstracts the submission channel so orchestration code can be
// exercised without network I/O.
type Submitter interface {
	// Submit sends one canonical payload for one operation under one
	// device credential. The returned outcome captures business
	// rejections and transport failures; the error return is reserved
	// for programmer-level faults such as an unserializable payload.
	Submit(ctx context.Context, op protocol.Operation, cred *device.Credential, payload any) (*Outcome, error)
}

// Config holds client configuration.
type Config struct {
	// Timeout bounds each request. Zero means [DefaultTimeout].
	Timeout time.Duration

	// BaseURLs overrides the per-environment endpoints, for tests and
	// self-hosted gateways. Missing environments fall back to the
	// protocol defaults.
	BaseURLs map[device.Environment]string

	Logger *slog.Logger
}

// Client submits canonical payloads over HTTP with authentication headers
// derived from the device credential.
type Client struct {
	httpClient *http.Client
	baseURLs   map[device.Environment]string
	demo       *Responder
	logger     *slog.Logger
}

// NewClient creates a transport client.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURLs:   cfg.BaseURLs,
		demo:       NewResponder(),
		logger:     logger,
	}
}

// endpoint resolves the physical URL for an operation in an environment.
func (c *Client) endpoint(env device.Environment, op protocol.Operation) string {
	base := c.baseURLs[env]
	if base == "" {
		base = protocol.BaseURL(env)
	}
	u, err := url.JoinPath(base, string(op))
	if err != nil {
		return base + string(op)
	}
	return u
}

// Submit implements [Submitter].
func (c *Client) Submit(ctx context.Context, op protocol.Operation, cred *device.Credential, payload any) (*Outcome, error) {
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	if cred.Environment == device.EnvDemo {
		return c.demo.Submit(ctx, op, cred, payload)
	}

	body, err := signer.Canonicalize(payload)
	if err != nil {
		return nil, err
	}
	signature := signer.Sign(cred.CMCKey, body)

	endpoint := c.endpoint(cred.Environment, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("tin", cred.TIN)
	req.Header.Set("bhfid", cred.BranchID)
	req.Header.Set("cmcKey", cred.CMCKey)
	req.Header.Set("sign", signature)
	req.Header.Set("signAlg", signer.Algorithm)

	log := c.logger.With("operation", string(op), "tin", cred.TIN, "branch", cred.BranchID)
	log.Info("submitting to authority", "endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := classifyRequestError(err)
		log.Warn("submission failed", "error", err, "kind", kind.String())
		return Failure(kind, requestErrorMessage(kind)), nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn("reading response failed", "error", err)
		return Failure(ErrorConnection, requestErrorMessage(ErrorConnection)), nil
	}

	if resp.StatusCode != http.StatusOK {
		log.Warn("authority returned http error", "status", resp.StatusCode)
		return Rejected(strconv.Itoa(resp.StatusCode),
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(raw, 200)), ""), nil
	}

	return c.interpret(log, raw), nil
}

// interpret normalizes a 200 response body into an outcome.
func (c *Client) interpret(log *slog.Logger, raw []byte) *Outcome {
	var envelope protocol.Response
	if err := unmarshalStrictEnvelope(raw, &envelope); err != nil {
		log.Warn("malformed response body", "error", err)
		return Failure(ErrorMalformedResponse, "the authority returned an unreadable response")
	}

	if envelope.OK() {
		log.Info("submission accepted", "result_dt", envelope.ResultTimestamp)
		return Success(&envelope)
	}

	log.Warn("submission rejected", "code", envelope.ResultCode, "message", envelope.ResultMessage)
	return Rejected(envelope.ResultCode, envelope.ResultMessage, envelope.ResultTimestamp)
}

// unmarshalStrictEnvelope parses the response envelope and rejects bodies
// that decode but violate the schema (no result code at all).
func unmarshalStrictEnvelope(raw []byte, envelope *protocol.Response) error {
	if err := json.Unmarshal(raw, envelope); err != nil {
		return err
	}
	if envelope.ResultCode == "" {
		return errors.New("missing resultCd")
	}
	return nil
}

func classifyRequestError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return ErrorTimeout
	}
	return ErrorConnection
}

func requestErrorMessage(kind ErrorKind) string {
	if kind == ErrorTimeout {
		return "the authority is currently unable to process the document"
	}
	return "could not connect to the authority service"
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
