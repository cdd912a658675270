// Package payload converts fiscal documents into the canonical JSON bodies
// required by the remote protocol: tax-rate bucketing over the closed A-E
// classes, line-item classification, and fixed-format timestamps in the
// authority's timezone.
//
// Builders are pure functions: no I/O, deterministic for a given document
// snapshot. Structural preconditions are checked before building; failures
// wrap [ErrValidation] and are surfaced to the orchestrator, which releases
// the allocated number before the authority ever sees it.
package payload

import (
	"fmt"
	"time"

	"github.com/sirosfoundation/go-etims/pkg/device"
	"github.com/sirosfoundation/go-etims/pkg/fiscal"
	"github.com/sirosfoundation/go-etims/pkg/protocol"
)

// Fixed protocol codes used by this integration.
const (
	salesTypeNormal      = "N"
	receiptTypeSale      = "S"
	receiptTypePurchase  = "P"
	paymentTypeCash      = "01"
	statusApproved       = "02"
	registrationManual   = "M"
	purchaserNotAccepted = "N"
	flagYes              = "Y"
	flagNo               = "N"
)

const dateLayout = "20060102"

// BuildSale builds the canonical sale body for a document with its number
// already allocated.
func BuildSale(doc *fiscal.Document, cred *device.Credential) (*SalePayload, error) {
	if err := checkDocument(doc, fiscal.KindSale); err != nil {
		return nil, err
	}

	buckets, err := bucketLines(doc.Lines)
	if err != nil {
		return nil, err
	}

	p := &SalePayload{
		TIN:             cred.TIN,
		BranchID:        cred.BranchID,
		InvoiceNumber:   doc.Number,
		CustomerTIN:     doc.Counterparty.TIN,
		CustomerName:    doc.Counterparty.Name,
		SalesTypeCode:   salesTypeNormal,
		ReceiptTypeCode: receiptTypeSale,
		PaymentTypeCode: paymentTypeCash,
		StatusCode:      statusApproved,
		ConfirmedDate:   protocol.FormatTime(doc.IssuedAt),
		SalesDate:       formatDate(doc.IssuedAt),
		TotalItemCount:  len(doc.Lines),
		Receipt: SaleReceipt{
			CustomerTIN:       doc.Counterparty.TIN,
			PurchaserAccepted: purchaserNotAccepted,
		},
	}
	fillBuckets(buckets,
		&p.TaxableAmountA, &p.TaxableAmountB, &p.TaxableAmountC, &p.TaxableAmountD, &p.TaxableAmountE,
		&p.TaxRateA, &p.TaxRateB, &p.TaxRateC, &p.TaxRateD, &p.TaxRateE,
		&p.TaxAmountA, &p.TaxAmountB, &p.TaxAmountC, &p.TaxAmountD, &p.TaxAmountE,
		&p.TotalTaxableAmount, &p.TotalTaxAmount, &p.TotalAmount)

	p.Items, err = buildLineEntries(doc.Lines)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// BuildPurchase derives the canonical purchase-confirmation body from
// ledger line items.
func BuildPurchase(doc *fiscal.Document, cred *device.Credential) (*PurchasePayload, error) {
	if err := checkDocument(doc, fiscal.KindPurchase); err != nil {
		return nil, err
	}

	buckets, err := bucketLines(doc.Lines)
	if err != nil {
		return nil, err
	}

	p := &PurchasePayload{
		TIN:                  cred.TIN,
		BranchID:             cred.BranchID,
		InvoiceNumber:        doc.Number,
		SupplierTIN:          doc.Counterparty.TIN,
		SupplierName:         doc.Counterparty.Name,
		RegistrationTypeCode: registrationManual,
		ReceiptTypeCode:      receiptTypePurchase,
		PaymentTypeCode:      paymentTypeCash,
		StatusCode:           statusApproved,
		ConfirmedDate:        protocol.FormatTime(doc.IssuedAt),
		PurchaseDate:         formatDate(doc.IssuedAt),
		TotalItemCount:       len(doc.Lines),
	}
	fillBuckets(buckets,
		&p.TaxableAmountA, &p.TaxableAmountB, &p.TaxableAmountC, &p.TaxableAmountD, &p.TaxableAmountE,
		&p.TaxRateA, &p.TaxRateB, &p.TaxRateC, &p.TaxRateD, &p.TaxRateE,
		&p.TaxAmountA, &p.TaxAmountB, &p.TaxAmountC, &p.TaxAmountD, &p.TaxAmountE,
		&p.TotalTaxableAmount, &p.TotalTaxAmount, &p.TotalAmount)

	p.Items, err = buildLineEntries(doc.Lines)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PassthroughPurchase validates an externally supplied, already-shaped
// purchase body and stamps the allocated number and device identity onto
// it. Externally supplied and locally derived bodies converge to the same
// canonical shape.
func PassthroughPurchase(p *PurchasePayload, number int64, cred *device.Credential) (*PurchasePayload, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: structured purchase body is nil", ErrValidation)
	}
	if len(p.Items) == 0 {
		return nil, fmt.Errorf("%w: structured purchase body has no items", ErrValidation)
	}
	if p.TotalItemCount != len(p.Items) {
		return nil, fmt.Errorf("%w: item count %d does not match %d items",
			ErrValidation, p.TotalItemCount, len(p.Items))
	}
	for i := range p.Items {
		class := fiscal.TaxClass(p.Items[i].TaxTypeCode)
		if !class.Valid() {
			return nil, fmt.Errorf("%w: item %d has unknown tax class %q",
				ErrValidation, i+1, p.Items[i].TaxTypeCode)
		}
	}

	out := *p
	out.TIN = cred.TIN
	out.BranchID = cred.BranchID
	out.InvoiceNumber = number
	if out.RegistrationTypeCode == "" {
		out.RegistrationTypeCode = registrationManual
	}
	if out.ReceiptTypeCode == "" {
		out.ReceiptTypeCode = receiptTypePurchase
	}
	return &out, nil
}

// BuildItem builds the canonical item-registration body.
func BuildItem(item *fiscal.Item, cred *device.Credential) (*ItemPayload, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: item is nil", ErrValidation)
	}
	if item.Code == "" {
		return nil, fmt.Errorf("%w: item %q has no item code", ErrValidation, item.Name)
	}
	if item.ClassCode == "" {
		return nil, fmt.Errorf("%w: item %s has no classification code", ErrValidation, item.Code)
	}
	line := fiscal.LineItem{Name: item.Name, TaxClasses: item.TaxClasses}
	class, err := resolveClass(&line, 1)
	if err != nil {
		return nil, err
	}

	return &ItemPayload{
		TIN:                 cred.TIN,
		BranchID:            cred.BranchID,
		Code:                item.Code,
		ClassCode:           item.ClassCode,
		TypeCode:            item.TypeCode,
		Name:                item.Name,
		Barcode:             item.Barcode,
		OriginCountryCode:   item.OriginCountryCode,
		PackagingUnitCode:   item.PackagingUnitCode,
		QuantityUnitCode:    item.QuantityUnitCode,
		TaxTypeCode:         string(class),
		DefaultPrice:        round2(item.DefaultPrice),
		InsuranceApplicable: yesNo(item.InsuranceApplicable),
		InUse:               flagYes,
		Remark:              item.Remark,
	}, nil
}

func checkDocument(doc *fiscal.Document, kind fiscal.DocumentKind) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrValidation)
	}
	if doc.Kind != kind {
		return fmt.Errorf("%w: document %s has kind %s, want %s", ErrValidation, doc.ID, doc.Kind, kind)
	}
	if doc.Number <= 0 {
		return fmt.Errorf("%w: document %s has no allocated number", ErrValidation, doc.ID)
	}
	if len(doc.Lines) == 0 {
		return fmt.Errorf("%w: document %s has no lines", ErrValidation, doc.ID)
	}
	return nil
}

func buildLineEntries(lines []fiscal.LineItem) ([]LineEntry, error) {
	entries := make([]LineEntry, 0, len(lines))
	for i := range lines {
		line := &lines[i]
		class, err := resolveClass(line, i+1)
		if err != nil {
			return nil, err
		}

		taxable := lineSupplyAmount(line)
		tax := lineTaxAmount(taxable, class)
		entries = append(entries, LineEntry{
			Sequence:          i + 1,
			ItemCode:          line.ItemCode,
			ItemClassCode:     line.ItemClassCode,
			Name:              line.Name,
			Barcode:           line.Barcode,
			PackagingUnitCode: line.PackagingUnitCode,
			Packaging:         line.PackagingQuantity,
			QuantityUnitCode:  line.QuantityUnitCode,
			Quantity:          line.Quantity,
			UnitPrice:         line.UnitPrice,
			SupplyAmount:      taxable,
			DiscountRate:      line.DiscountRate,
			DiscountAmount:    line.DiscountAmount,
			TaxTypeCode:       string(class),
			TaxableAmount:     taxable,
			TaxAmount:         tax,
			TotalAmount:       round2(taxable + tax),
		})
	}
	return entries, nil
}

// fillBuckets writes the per-class aggregates and grand totals into the
// flattened wire fields shared by sale and purchase bodies.
func fillBuckets(buckets map[fiscal.TaxClass]*TaxBucket,
	taxableA, taxableB, taxableC, taxableD, taxableE,
	rateA, rateB, rateC, rateD, rateE,
	taxA, taxB, taxC, taxD, taxE,
	totTaxable, totTax, totAmount *float64,
) {
	taxables := []*float64{taxableA, taxableB, taxableC, taxableD, taxableE}
	rates := []*float64{rateA, rateB, rateC, rateD, rateE}
	taxes := []*float64{taxA, taxB, taxC, taxD, taxE}

	for i, class := range fiscal.TaxClasses {
		bucket := buckets[class]
		*taxables[i] = bucket.TaxableAmount
		*rates[i] = bucket.Rate
		*taxes[i] = bucket.TaxAmount
		*totTaxable = round2(*totTaxable + bucket.TaxableAmount)
		*totTax = round2(*totTax + bucket.TaxAmount)
	}
	*totAmount = round2(*totTaxable + *totTax)
}

func formatDate(t time.Time) string {
	// Same reference timezone as the full timestamps: take the date part
	// of the wire form.
	return protocol.FormatTime(t)[:len(dateLayout)]
}

func yesNo(v bool) string {
	if v {
		return flagYes
	}
	return flagNo
}
