// Package protocol defines the wire vocabulary of the authority's remote
// signing service: operation names, per-environment base URLs, the JSON
// response envelope, the result-code vocabulary with user-facing action
// hints, and the authority-timezone timestamp format.
package protocol

import (
	"encoding/json"

	"github.com/sirosfoundation/go-etims/pkg/device"
)

// Operation names the remote endpoints. Each accepts a canonical JSON body
// and returns a [Response] envelope.
type Operation string

const (
	OpInitialize   Operation = "initOscu"
	OpSaleSave     Operation = "saveTrnsSalesOsdc"
	OpPurchaseSave Operation = "insertTrnsPurchase"
	OpItemSave     Operation = "saveItem"
	OpItemList     Operation = "selectItemList"
	OpCustomerSave Operation = "saveBhfCustomer"
	OpBranchList   Operation = "selectBhfList"
	OpCodeList     Operation = "selectCodeList"
)

// Base URLs per environment. The demo URL is never dialled; demo
// submissions are answered in-process.
var baseURLs = map[device.Environment]string{
	device.EnvProduction: "https://etims.kra.go.ke/etims/api/",
	device.EnvTest:       "https://etims-test.kra.go.ke/etims/api/",
	device.EnvDemo:       "http://localhost:8080/etims/api/",
}

// BaseURL returns the physical endpoint prefix for an environment. Unknown
// environments resolve to production.
func BaseURL(env device.Environment) string {
	if url, ok := baseURLs[env]; ok {
		return url
	}
	return baseURLs[device.EnvProduction]
}

// Response is the envelope every operation returns. ResultCode
// [ResultCodeOK] denotes success; any other code is a business rejection.
type Response struct {
	ResultCode      string          `json:"resultCd"`
	ResultMessage   string          `json:"resultMsg"`
	ResultTimestamp string          `json:"resultDt"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// OK reports whether the envelope carries the success code.
func (r *Response) OK() bool {
	return r.ResultCode == ResultCodeOK
}

// ReceiptData is the operation data object returned by a successful sale
// submission. These are the fields persisted onto the fiscal document.
type ReceiptData struct {
	InvoiceNumber      int64  `json:"invcNo"`
	ReceiptNumber      int64  `json:"curRcptNo"`
	TotalReceiptNumber int64  `json:"totRcptNo,omitempty"`
	InternalData       string `json:"intrlData"`
	Signature          string `json:"rcptSign"`
	ControlUnitTime    string `json:"sdcDateTime"`
}

// Result-code vocabulary. The three transport codes are synthesized locally
// when no well-formed envelope was received; the rest come from the
// authority.
const (
	ResultCodeOK = "000"

	// Synthetic transport codes.
	CodeTimeout           = "TIMEOUT"
	CodeConnectionError   = "CONNECTION_ERROR"
	CodeMalformedResponse = "JSON_ERROR"

	// Synthetic local code for payloads that fail structural validation
	// before any network call.
	CodeValidationError = "VALIDATION_ERROR"

	// Authority rejection codes.
	CodeRecordNotFound      = "894"
	CodeDeviceNotRegistered = "901"
	CodeInvalidParameter    = "910"
	CodeRegistrationFailed  = "999"
)

// hints maps result codes to fixed user-facing action hints.
var hints = map[string]string{
	CodeTimeout:             "The authority is currently unable to process the document. Try again later.",
	CodeConnectionError:     "The authority service could not be reached. Check connectivity and try again.",
	CodeMalformedResponse:   "The authority returned an unreadable response. Try again later.",
	CodeValidationError:     "The document is not valid for transmission. Correct it and resubmit.",
	CodeRecordNotFound:      "The referenced record is not known to the authority. Check the document references.",
	CodeDeviceNotRegistered: "This device is not registered with the authority. Initialize the device first.",
	CodeInvalidParameter:    "The authority rejected the request parameters. Correct the document and resubmit.",
	CodeRegistrationFailed:  "The authority could not register the record. Correct the document and resubmit.",
}

// Hint returns the action hint for a result code, or a generic fallback for
// codes outside the fixed vocabulary.
func Hint(code string) string {
	if h, ok := hints[code]; ok {
		return h
	}
	return "The authority rejected the document. Review the message and resubmit."
}
