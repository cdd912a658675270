package transport

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/sirosfoundation/go-etims/pkg/device"
	"github.com/sirosfoundation/go-etims/pkg/protocol"
	"github.com/sirosfoundation/go-etims/pkg/signer"
)

// Responder answers submissions in-process for the demo environment. It
// produces structurally valid success envelopes with receipt fields
// derived deterministically from the payload, so the full orchestration
// state machine is exercised with no network I/O.
type Responder struct {
	now func() time.Time
}

// NewResponder creates a demo responder.
func NewResponder() *Responder {
	return &Responder{now: time.Now}
}

// Submit implements [Submitter]. It always succeeds for well-formed
// payloads.
func (r *Responder) Submit(ctx context.Context, op protocol.Operation, cred *device.Credential, payload any) (*Outcome, error) {
	body, err := signer.Canonicalize(payload)
	if err != nil {
		return nil, err
	}

	now := protocol.FormatTime(r.now())
	data, err := json.Marshal(r.demoData(op, body, now))
	if err != nil {
		return nil, err
	}

	return Success(&protocol.Response{
		ResultCode:      protocol.ResultCodeOK,
		ResultMessage:   "Success",
		ResultTimestamp: now,
		Data:            data,
	}), nil
}

// demoData synthesizes the operation data object. Sale and purchase
// submissions get receipt fields keyed to the allocated invoice number;
// everything else gets a minimal success object.
func (r *Responder) demoData(op protocol.Operation, body []byte, now string) any {
	switch op {
	case protocol.OpSaleSave, protocol.OpPurchaseSave:
		number := invoiceNumberOf(body)
		return &protocol.ReceiptData{
			InvoiceNumber:      number,
			ReceiptNumber:      number,
			TotalReceiptNumber: number,
			InternalData:       base64.StdEncoding.EncodeToString(body),
			Signature:          demoSignature(body),
			ControlUnitTime:    now,
		}
	case protocol.OpItemSave:
		return map[string]string{"itemCd": itemCodeOf(body)}
	default:
		return map[string]any{}
	}
}

// demoSignature derives a stable receipt signature from the payload bytes.
func demoSignature(body []byte) string {
	sum := sha256.Sum256(body)
	return "DEMO_SIGNATURE_" + hex.EncodeToString(sum[:16])
}

func invoiceNumberOf(body []byte) int64 {
	var probe struct {
		InvoiceNumber int64 `json:"invcNo"`
	}
	_ = json.Unmarshal(body, &probe)
	return probe.InvoiceNumber
}

func itemCodeOf(body []byte) string {
	var probe struct {
		Code string `json:"itemCd"`
	}
	_ = json.Unmarshal(body, &probe)
	return probe.Code
}
