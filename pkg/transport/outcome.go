package transport

import (
	"encoding/json"

	"github.com/sirosfoundation/go-etims/pkg/fiscal"
	"github.com/sirosfoundation/go-etims/pkg/protocol"
)

// Kind discriminates the normalized result of one submission.
type Kind int

const (
	// KindSuccess: a well-formed envelope carrying the success code.
	KindSuccess Kind = iota
	// KindRejected: a well-formed envelope carrying a non-success code.
	// This is a business-level rejection and must not be retried
	// automatically.
	KindRejected
	// KindTransportError: the submission never produced a well-formed
	// envelope (timeout, connection failure, unparseable body).
	KindTransportError
)

// ErrorKind classifies transport failures.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorTimeout
	ErrorConnection
	ErrorMalformedResponse
)

// Code maps a transport failure to its synthetic result code.
func (k ErrorKind) Code() string {
	switch k {
	case ErrorTimeout:
		return protocol.CodeTimeout
	case ErrorConnection:
		return protocol.CodeConnectionError
	case ErrorMalformedResponse:
		return protocol.CodeMalformedResponse
	}
	return ""
}

func (k ErrorKind) String() string {
	switch k {
	case ErrorTimeout:
		return "timeout"
	case ErrorConnection:
		return "connection"
	case ErrorMalformedResponse:
		return "malformed_response"
	}
	return "none"
}

// Outcome is the typed result of one submission attempt. Exactly one of
// the three kinds applies; Code and Message are populated for every
// non-success outcome (authority codes for rejections, the synthetic
// vocabulary for transport failures).
type Outcome struct {
	Kind Kind

	// Data is the operation data object of a successful envelope.
	Data json.RawMessage

	// ResultTimestamp is the envelope's resultDt when one was received.
	ResultTimestamp string

	Code    string
	Message string

	// Transport is set when Kind is KindTransportError.
	Transport ErrorKind
}

// Success builds a success outcome from a parsed envelope.
func Success(resp *protocol.Response) *Outcome {
	return &Outcome{
		Kind:            KindSuccess,
		Data:            resp.Data,
		ResultTimestamp: resp.ResultTimestamp,
		Code:            resp.ResultCode,
		Message:         resp.ResultMessage,
	}
}

// Rejected builds a business-rejection outcome.
func Rejected(code, message, resultTimestamp string) *Outcome {
	return &Outcome{
		Kind:            KindRejected,
		ResultTimestamp: resultTimestamp,
		Code:            code,
		Message:         message,
	}
}

// Failure builds a transport-error outcome.
func Failure(kind ErrorKind, message string) *Outcome {
	return &Outcome{
		Kind:      KindTransportError,
		Code:      kind.Code(),
		Message:   message,
		Transport: kind,
	}
}

// Succeeded reports whether the submission was confirmed.
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Kind == KindSuccess
}

// FiscalOutcome maps the kind onto the persisted result vocabulary.
func (o *Outcome) FiscalOutcome() fiscal.Outcome {
	switch o.Kind {
	case KindSuccess:
		return fiscal.OutcomeSuccess
	case KindTransportError:
		return fiscal.OutcomeTransportError
	}
	return fiscal.OutcomeRejected
}

// DecodeData unmarshals the operation data object of a success outcome.
func (o *Outcome) DecodeData(v any) error {
	return json.Unmarshal(o.Data, v)
}
