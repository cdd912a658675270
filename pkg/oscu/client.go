// Package oscu implements the transmission orchestrator: the state machine
// that ties sequence allocation, payload building, signed submission, and
// response interpretation together per fiscal document.
//
// # State machine
//
// Each attempt runs Idle -> NumberAllocated -> Submitted and terminates in
// Confirmed or Failed. Builder validation failures, business rejections,
// and transport failures all pass through RolledBack: the allocated number
// is released before the attempt terminates, so the counter never leaks an
// allocated-but-abandoned value. There is no automatic re-entry from
// Failed; a fresh attempt starts a new cycle and allocates a new number.
//
// # Concurrency
//
// Submission is synchronous and blocking. A per-(device, kind) mutex is
// held across the whole attempt, so concurrent postings for the same scope
// serialize while different devices, or different kinds on one device,
// proceed fully in parallel.
package oscu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sirosfoundation/go-etims/pkg/device"
	"github.com/sirosfoundation/go-etims/pkg/fiscal"
	"github.com/sirosfoundation/go-etims/pkg/payload"
	"github.com/sirosfoundation/go-etims/pkg/protocol"
	"github.com/sirosfoundation/go-etims/pkg/sequence"
	"github.com/sirosfoundation/go-etims/pkg/transport"
)

// ErrBlockingValidation indicates the document carries unresolved blocking
// ledger validations. The attempt is refused before any number is
// allocated or any network call is made.
var ErrBlockingValidation = errors.New("document has unresolved blocking validations")

// DocumentStore persists document state transitions and per-attempt
// results. Implementations must be safe for concurrent use.
type DocumentStore interface {
	// UpdateDocument persists the document's current state.
	UpdateDocument(ctx context.Context, doc *fiscal.Document) error

	// RecordResult appends one immutable transmission result.
	RecordResult(ctx context.Context, result *fiscal.TransmissionResult) error
}

// Config holds orchestrator configuration.
type Config struct {
	// Store persists documents and transmission results. Required.
	Store DocumentStore

	// Counters persists sequence counters. Required.
	Counters sequence.CounterStore

	// Submitter is the submission channel. Defaults to a transport
	// client with protocol base URLs and the default timeout.
	Submitter transport.Submitter

	Logger *slog.Logger
}

// Client is the transmission orchestrator and the inbound API for the
// ledger subsystem.
type Client struct {
	store     DocumentStore
	allocator *sequence.Allocator
	submitter transport.Submitter
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[sequence.Scope]*sync.Mutex
}

// NewClient creates an orchestrator.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if cfg.Counters == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	submitter := cfg.Submitter
	if submitter == nil {
		submitter = transport.NewClient(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		store:     cfg.Store,
		allocator: sequence.NewAllocator(cfg.Counters),
		submitter: submitter,
		logger:    logger,
		inflight:  make(map[sequence.Scope]*sync.Mutex),
	}, nil
}

// SubmitSaleInvoice transmits a sales invoice. It blocks until the attempt
// reaches a terminal state.
//
// Precondition failures (uninitialized credential, blocking validations,
// wrong document kind) return an error with no number allocated. All other
// failures return a non-success result with err == nil; internal faults
// (storage, lock) return an error after releasing any allocated number.
func (c *Client) SubmitSaleInvoice(ctx context.Context, cred *device.Credential, doc *fiscal.Document) (*fiscal.TransmissionResult, error) {
	if err := c.checkDocument(cred, doc, fiscal.KindSale); err != nil {
		return nil, err
	}
	return c.transmit(ctx, cred, &attempt{
		op:         protocol.OpSaleSave,
		kind:       fiscal.KindSale,
		documentID: doc.ID,
		doc:        doc,
		build: func(number int64) (any, error) {
			doc.Number = number
			return payload.BuildSale(doc, cred)
		},
	})
}

// ConfirmPurchaseBill transmits a vendor bill confirmation. When
// structured is non-nil it is the externally supplied, already-shaped
// body: it is validated and passed through instead of being derived from
// the document's line items. Both sources converge to the same canonical
// shape.
func (c *Client) ConfirmPurchaseBill(ctx context.Context, cred *device.Credential, doc *fiscal.Document, structured *payload.PurchasePayload) (*fiscal.TransmissionResult, error) {
	if err := c.checkDocument(cred, doc, fiscal.KindPurchase); err != nil {
		return nil, err
	}
	build := func(number int64) (any, error) {
		doc.Number = number
		if structured != nil {
			return payload.PassthroughPurchase(structured, number, cred)
		}
		return payload.BuildPurchase(doc, cred)
	}
	return c.transmit(ctx, cred, &attempt{
		op:         protocol.OpPurchaseSave,
		kind:       fiscal.KindPurchase,
		documentID: doc.ID,
		doc:        doc,
		build:      build,
	})
}

// RegisterItem transmits an item registration. Item registrations run the
// same state machine and consume the item-registration counter of the
// device; the allocated number is recorded on the result but not
// transmitted, as the protocol has no field for it.
func (c *Client) RegisterItem(ctx context.Context, cred *device.Credential, item *fiscal.Item) (*fiscal.TransmissionResult, error) {
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("item is nil")
	}
	return c.transmit(ctx, cred, &attempt{
		op:         protocol.OpItemSave,
		kind:       fiscal.KindItem,
		documentID: item.ID,
		build: func(int64) (any, error) {
			return payload.BuildItem(item, cred)
		},
	})
}

// checkDocument enforces the Idle-state preconditions shared by the two
// document-kind operations.
func (c *Client) checkDocument(cred *device.Credential, doc *fiscal.Document, kind fiscal.DocumentKind) error {
	if err := cred.Validate(); err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	if doc.Kind != kind {
		return fmt.Errorf("document %s has kind %s, want %s", doc.ID, doc.Kind, kind)
	}
	if blocking := doc.BlockingValidations(); len(blocking) > 0 {
		messages := make([]string, len(blocking))
		for i, v := range blocking {
			messages[i] = v.Message
		}
		return fmt.Errorf("%w: %s", ErrBlockingValidation, strings.Join(messages, "; "))
	}
	return nil
}

// attempt carries one submission cycle through the state machine. doc is
// nil for item registrations, which have no ledger document to transition.
type attempt struct {
	op         protocol.Operation
	kind       fiscal.DocumentKind
	documentID string
	doc        *fiscal.Document
	build      func(number int64) (any, error)
}

func (c *Client) transmit(ctx context.Context, cred *device.Credential, at *attempt) (*fiscal.TransmissionResult, error) {
	scope := sequence.Scope{DeviceID: cred.ControlUnitID, Kind: at.kind}

	// Serialize the full cycle per scope so rollback always targets the
	// scope's single uncommitted number.
	lock := c.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	log := c.logger.With(
		"operation", string(at.op),
		"device", cred.ControlUnitID,
		"kind", string(at.kind),
		"document", at.documentID,
	)

	// Idle -> NumberAllocated.
	number, err := c.allocator.Allocate(ctx, scope)
	if err != nil {
		c.markFailed(ctx, at.doc, "allocation error: "+err.Error())
		log.Error("allocation failed", "error", err)
		return nil, fmt.Errorf("allocating number for %s: %w", scope, err)
	}
	log = log.With("number", number)

	if at.doc != nil {
		at.doc.Number = number
		at.doc.Status = fiscal.StatusNumberAllocated
		if err := c.store.UpdateDocument(ctx, at.doc); err != nil {
			c.rollback(ctx, scope, number, at.doc)
			return nil, fmt.Errorf("persisting allocation: %w", err)
		}
	}

	// NumberAllocated -> Submitted, or straight to RolledBack on builder
	// validation failure: the number must never reach the authority for
	// an invalid payload.
	body, err := at.build(number)
	if err != nil {
		if errors.Is(err, payload.ErrValidation) {
			c.rollback(ctx, scope, number, at.doc)
			result := c.newResult(cred, at, number, fiscal.OutcomeRejected,
				protocol.CodeValidationError, err.Error())
			c.finishFailed(ctx, at.doc, result)
			log.Warn("payload validation failed", "error", err)
			return result, nil
		}
		c.rollback(ctx, scope, number, at.doc)
		c.markFailed(ctx, at.doc, err.Error())
		return nil, fmt.Errorf("building payload: %w", err)
	}

	if at.doc != nil {
		at.doc.Status = fiscal.StatusSubmitted
		if err := c.store.UpdateDocument(ctx, at.doc); err != nil {
			c.rollback(ctx, scope, number, at.doc)
			return nil, fmt.Errorf("persisting submission: %w", err)
		}
	}

	outcome, err := c.submitter.Submit(ctx, at.op, cred, body)
	if err != nil {
		c.rollback(ctx, scope, number, at.doc)
		c.markFailed(ctx, at.doc, err.Error())
		return nil, fmt.Errorf("submitting %s: %w", at.op, err)
	}

	switch outcome.Kind {
	case transport.KindSuccess:
		return c.confirm(ctx, cred, at, scope, number, outcome, log)
	default:
		// Submitted -> RolledBack -> Failed.
		c.rollback(ctx, scope, number, at.doc)
		result := c.newResult(cred, at, number, outcome.FiscalOutcome(), outcome.Code, outcome.Message)
		c.finishFailed(ctx, at.doc, result)
		log.Warn("submission not confirmed",
			"outcome", result.Outcome, "code", outcome.Code, "message", outcome.Message)
		return result, nil
	}
}

// confirm runs Submitted -> Confirmed: commit the number and persist the
// receipt fields onto the document.
func (c *Client) confirm(ctx context.Context, cred *device.Credential, at *attempt, scope sequence.Scope, number int64, outcome *transport.Outcome, log *slog.Logger) (*fiscal.TransmissionResult, error) {
	var receipt protocol.ReceiptData
	if len(outcome.Data) > 0 {
		// Operations without receipt fields leave the struct zero.
		_ = json.Unmarshal(outcome.Data, &receipt)
	}

	confirmedAt := c.confirmationTime(receipt.ControlUnitTime, outcome.ResultTimestamp)

	if err := c.allocator.Commit(ctx, scope, number); err != nil {
		return nil, fmt.Errorf("committing number %d: %w", number, err)
	}

	result := c.newResult(cred, at, number, fiscal.OutcomeSuccess, outcome.Code, outcome.Message)
	result.ReceiptNumber = receipt.ReceiptNumber
	result.ReceiptSignature = receipt.Signature
	result.ConfirmedAt = confirmedAt
	result.InternalData = receipt.InternalData
	result.Hint = ""

	if at.doc != nil {
		at.doc.Status = fiscal.StatusConfirmed
		at.doc.ReceiptNumber = receipt.ReceiptNumber
		at.doc.ReceiptSignature = receipt.Signature
		at.doc.ConfirmedAt = confirmedAt
		at.doc.InternalData = receipt.InternalData
		at.doc.LastError = ""
		if err := c.store.UpdateDocument(ctx, at.doc); err != nil {
			// The number is committed and the receipt exists remotely;
			// surface the fault without touching the counter.
			return nil, fmt.Errorf("persisting confirmation: %w", err)
		}
	}

	if err := c.store.RecordResult(ctx, result); err != nil {
		log.Error("recording result failed", "error", err)
	}
	log.Info("document confirmed",
		"receipt_number", receipt.ReceiptNumber, "confirmed_at", confirmedAt)
	return result, nil
}

// confirmationTime parses the control-unit timestamp, falling back to the
// envelope timestamp, then to local now.
func (c *Client) confirmationTime(controlUnitTime, resultTimestamp string) time.Time {
	for _, raw := range []string{controlUnitTime, resultTimestamp} {
		if raw == "" {
			continue
		}
		if t, err := protocol.ParseTime(raw); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

// rollback releases a number and clears it from the document. Release is
// idempotent; calling it on an already-resolved number is a no-op.
func (c *Client) rollback(ctx context.Context, scope sequence.Scope, number int64, doc *fiscal.Document) {
	if err := c.allocator.Release(ctx, scope, number); err != nil {
		c.logger.Error("releasing number failed", "scope", scope.String(), "number", number, "error", err)
	}
	if doc != nil {
		doc.Number = 0
	}
}

// finishFailed moves the document to Failed and records the attempt.
func (c *Client) finishFailed(ctx context.Context, doc *fiscal.Document, result *fiscal.TransmissionResult) {
	if doc != nil {
		doc.Status = fiscal.StatusFailed
		doc.LastError = failureText(result)
		if err := c.store.UpdateDocument(ctx, doc); err != nil {
			c.logger.Error("persisting failure failed", "document", doc.ID, "error", err)
		}
	}
	if err := c.store.RecordResult(ctx, result); err != nil {
		c.logger.Error("recording result failed", "document", result.DocumentID, "error", err)
	}
}

// markFailed records a terminal failure that produced no result record.
func (c *Client) markFailed(ctx context.Context, doc *fiscal.Document, reason string) {
	if doc == nil {
		return
	}
	doc.Status = fiscal.StatusFailed
	doc.LastError = reason
	if err := c.store.UpdateDocument(ctx, doc); err != nil {
		c.logger.Error("persisting failure failed", "document", doc.ID, "error", err)
	}
}

func (c *Client) newResult(cred *device.Credential, at *attempt, number int64, outcome fiscal.Outcome, code, message string) *fiscal.TransmissionResult {
	result := &fiscal.TransmissionResult{
		ID:          uuid.New().String(),
		Outcome:     outcome,
		DeviceID:    cred.ControlUnitID,
		DocumentID:  at.documentID,
		Number:      number,
		Code:        code,
		Message:     message,
		AttemptedAt: time.Now().UTC(),
	}
	if outcome != fiscal.OutcomeSuccess {
		result.Hint = protocol.Hint(code)
	}
	return result
}

func (c *Client) scopeLock(scope sequence.Scope) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.inflight[scope]
	if !ok {
		lock = &sync.Mutex{}
		c.inflight[scope] = lock
	}
	return lock
}

func failureText(result *fiscal.TransmissionResult) string {
	if result.Message == "" {
		return result.Code
	}
	return result.Code + ": " + result.Message
}
