// Package fiscal defines the domain model for documents reported to the
// tax authority: sales invoices, vendor bill confirmations, and item
// registrations, together with the per-attempt transmission result.
//
// The ledger subsystem owns these records; the transmission pipeline reads
// their content and writes back confirmation fields on success.
package fiscal

import "time"

// DocumentKind discriminates the three reportable document kinds. Sequence
// counters are scoped per (device, kind).
type DocumentKind string

const (
	KindSale     DocumentKind = "sale"
	KindPurchase DocumentKind = "purchase"
	KindItem     DocumentKind = "item"
)

// Valid reports whether k is a known document kind.
func (k DocumentKind) Valid() bool {
	switch k {
	case KindSale, KindPurchase, KindItem:
		return true
	}
	return false
}

// Status is the document lifecycle state driven by the transmission state
// machine. Confirmed and Failed are terminal; a fresh attempt after Failed
// starts a new cycle from Draft with a newly allocated number.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusNumberAllocated Status = "number_allocated"
	StatusSubmitted       Status = "submitted"
	StatusConfirmed       Status = "confirmed"
	StatusFailed          Status = "failed"
)

// TaxClass is the closed enumeration of tax-rate classes used for line-item
// bucketing. Every line must resolve to exactly one class.
type TaxClass string

const (
	TaxClassA TaxClass = "A" // exempt
	TaxClassB TaxClass = "B" // standard rate
	TaxClassC TaxClass = "C" // zero-rated
	TaxClassD TaxClass = "D" // non-VAT
	TaxClassE TaxClass = "E" // reduced rate
)

// TaxClasses lists all classes in bucket order.
var TaxClasses = []TaxClass{TaxClassA, TaxClassB, TaxClassC, TaxClassD, TaxClassE}

// Valid reports whether c is a known tax class.
func (c TaxClass) Valid() bool {
	switch c {
	case TaxClassA, TaxClassB, TaxClassC, TaxClassD, TaxClassE:
		return true
	}
	return false
}

// LineItem is one invoice or bill line as supplied by the ledger.
//
// TaxClasses carries every class the ledger's tax configuration resolves for
// the line. The payload builder requires exactly one; zero or multiple is a
// build-time validation failure, never silently defaulted.
type LineItem struct {
	ItemCode          string     `bson:"item_code" json:"itemCode"`
	ItemClassCode     string     `bson:"item_class_code" json:"itemClassCode"`
	Name              string     `bson:"name" json:"name"`
	Barcode           string     `bson:"barcode,omitempty" json:"barcode,omitempty"`
	PackagingUnitCode string     `bson:"packaging_unit_code" json:"packagingUnitCode"`
	PackagingQuantity float64    `bson:"packaging_quantity" json:"packagingQuantity"`
	QuantityUnitCode  string     `bson:"quantity_unit_code" json:"quantityUnitCode"`
	Quantity          float64    `bson:"quantity" json:"quantity"`
	UnitPrice         float64    `bson:"unit_price" json:"unitPrice"`
	DiscountRate      float64    `bson:"discount_rate,omitempty" json:"discountRate,omitempty"`
	DiscountAmount    float64    `bson:"discount_amount,omitempty" json:"discountAmount,omitempty"`
	TaxClasses        []TaxClass `bson:"tax_classes" json:"taxClasses"`
}

// Counterparty identifies the customer (sales) or supplier (purchases).
type Counterparty struct {
	TIN  string `bson:"tin,omitempty" json:"tin,omitempty"`
	Name string `bson:"name" json:"name"`
}

// ValidationMessage is a ledger-side validation attached to a document.
// A blocking message is an unresolved precondition: the document must not
// be submitted, and no number may be allocated for it.
type ValidationMessage struct {
	Message  string `bson:"message" json:"message"`
	Blocking bool   `bson:"blocking" json:"blocking"`
}

// Document is a fiscal document owned by the ledger. Number is zero until
// the allocator assigns one; confirmation fields are written only after a
// successful, signed receipt.
type Document struct {
	ID     string       `bson:"_id" json:"id"`
	Kind   DocumentKind `bson:"kind" json:"kind"`
	Number int64        `bson:"number,omitempty" json:"number,omitempty"`
	Status Status       `bson:"status" json:"status"`

	Counterparty Counterparty        `bson:"counterparty" json:"counterparty"`
	Currency     string              `bson:"currency" json:"currency"`
	Lines        []LineItem          `bson:"lines" json:"lines"`
	IssuedAt     time.Time           `bson:"issued_at" json:"issuedAt"`
	Validations  []ValidationMessage `bson:"validations,omitempty" json:"validations,omitempty"`

	// Confirmation fields, persisted on success only.
	ReceiptNumber    int64     `bson:"receipt_number,omitempty" json:"receiptNumber,omitempty"`
	ReceiptSignature string    `bson:"receipt_signature,omitempty" json:"receiptSignature,omitempty"`
	ConfirmedAt      time.Time `bson:"confirmed_at,omitempty" json:"confirmedAt,omitempty"`
	// InternalData is the authority's opaque blob: stored, never interpreted.
	InternalData string `bson:"internal_data,omitempty" json:"internalData,omitempty"`

	// LastError records the most recent failure for operator visibility.
	LastError string `bson:"last_error,omitempty" json:"lastError,omitempty"`
}

// BlockingValidations returns the unresolved blocking messages, if any.
func (d *Document) BlockingValidations() []ValidationMessage {
	var blocking []ValidationMessage
	for _, v := range d.Validations {
		if v.Blocking {
			blocking = append(blocking, v)
		}
	}
	return blocking
}

// Item is a product registration reported to the authority's item master.
type Item struct {
	ID                  string     `json:"id"`
	Code                string     `json:"code"`
	ClassCode           string     `json:"classCode"`
	Name                string     `json:"name"`
	TypeCode            string     `json:"typeCode"` // 1 raw material, 2 finished product, 3 service
	Barcode             string     `json:"barcode,omitempty"`
	OriginCountryCode   string     `json:"originCountryCode"`
	PackagingUnitCode   string     `json:"packagingUnitCode"`
	QuantityUnitCode    string     `json:"quantityUnitCode"`
	TaxClasses          []TaxClass `json:"taxClasses"`
	DefaultPrice        float64    `json:"defaultPrice"`
	InsuranceApplicable bool       `json:"insuranceApplicable"`
	Remark              string     `json:"remark,omitempty"`
}

// Outcome discriminates the result of one submission attempt.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeRejected       Outcome = "rejected"
	OutcomeTransportError Outcome = "transport_error"
)

// TransmissionResult is the immutable record of one submission attempt.
// Receipt fields are populated only when Outcome is success.
type TransmissionResult struct {
	ID      string  `bson:"_id" json:"id"`
	Outcome Outcome `bson:"outcome" json:"outcome"`

	// DeviceID scopes the result to the control unit that attempted it;
	// DocumentID references the document (or item) submitted.
	DeviceID   string `bson:"device_id" json:"deviceId"`
	DocumentID string `bson:"document_id" json:"documentId"`

	// Allocated fiscal number the attempt ran under. On failure the number
	// is released and may be reissued by a later attempt.
	Number int64 `bson:"number,omitempty" json:"number,omitempty"`

	ReceiptNumber    int64     `bson:"receipt_number,omitempty" json:"receiptNumber,omitempty"`
	ReceiptSignature string    `bson:"receipt_signature,omitempty" json:"receiptSignature,omitempty"`
	ConfirmedAt      time.Time `bson:"confirmed_at,omitempty" json:"confirmedAt,omitempty"`
	InternalData     string    `bson:"internal_data,omitempty" json:"internalData,omitempty"`

	// Raw error code and message from the authority (or the synthetic
	// transport vocabulary), plus the fixed user-facing action hint.
	Code    string `bson:"code,omitempty" json:"code,omitempty"`
	Message string `bson:"message,omitempty" json:"message,omitempty"`
	Hint    string `bson:"hint,omitempty" json:"hint,omitempty"`

	AttemptedAt time.Time `bson:"attempted_at" json:"attemptedAt"`
}

// Succeeded reports whether the attempt produced a confirmed receipt.
func (r *TransmissionResult) Succeeded() bool {
	return r != nil && r.Outcome == OutcomeSuccess
}
