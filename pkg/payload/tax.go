package payload

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirosfoundation/go-etims/pkg/fiscal"
)

// ErrValidation marks structural precondition failures found while building
// a payload. The orchestrator releases the allocated number and surfaces
// these as user-correctable errors; they are never silently defaulted.
var ErrValidation = errors.New("payload validation")

// Percentage rates per tax class. The classes are a closed enumeration;
// zero-rated and exempt classes carry a zero rate but remain distinct
// buckets on the wire.
var taxRates = map[fiscal.TaxClass]float64{
	fiscal.TaxClassA: 0,  // exempt
	fiscal.TaxClassB: 16, // standard
	fiscal.TaxClassC: 0,  // zero-rated
	fiscal.TaxClassD: 0,  // non-VAT
	fiscal.TaxClassE: 8,  // reduced
}

// TaxRate returns the percentage rate for a class.
func TaxRate(class fiscal.TaxClass) float64 {
	return taxRates[class]
}

// TaxBucket aggregates the lines of one tax class.
type TaxBucket struct {
	Class         fiscal.TaxClass
	Rate          float64
	TaxableAmount float64
	TaxAmount     float64
	ItemCount     int
}

// resolveClass returns the single tax class a line belongs to. A line with
// zero or multiple applicable classes is a build-time validation failure.
func resolveClass(line *fiscal.LineItem, seq int) (fiscal.TaxClass, error) {
	switch len(line.TaxClasses) {
	case 0:
		return "", fmt.Errorf("%w: line %d (%s) has no tax class", ErrValidation, seq, line.Name)
	case 1:
	default:
		return "", fmt.Errorf("%w: line %d (%s) has %d tax classes, want exactly one",
			ErrValidation, seq, line.Name, len(line.TaxClasses))
	}
	class := line.TaxClasses[0]
	if !class.Valid() {
		return "", fmt.Errorf("%w: line %d (%s) has unknown tax class %q", ErrValidation, seq, line.Name, class)
	}
	return class, nil
}

// bucketLines classifies every line into exactly one tax class and
// aggregates taxable amount, tax amount, and item count per class.
func bucketLines(lines []fiscal.LineItem) (map[fiscal.TaxClass]*TaxBucket, error) {
	buckets := make(map[fiscal.TaxClass]*TaxBucket, len(fiscal.TaxClasses))
	for _, class := range fiscal.TaxClasses {
		buckets[class] = &TaxBucket{Class: class, Rate: taxRates[class]}
	}

	for i := range lines {
		line := &lines[i]
		class, err := resolveClass(line, i+1)
		if err != nil {
			return nil, err
		}

		taxable := lineSupplyAmount(line)
		bucket := buckets[class]
		bucket.TaxableAmount = round2(bucket.TaxableAmount + taxable)
		bucket.TaxAmount = round2(bucket.TaxAmount + lineTaxAmount(taxable, class))
		bucket.ItemCount++
	}
	return buckets, nil
}

// lineSupplyAmount is the taxable amount of one line after discount.
func lineSupplyAmount(line *fiscal.LineItem) float64 {
	return round2(line.Quantity*line.UnitPrice - line.DiscountAmount)
}

// lineTaxAmount computes the tax on a taxable amount for a class.
func lineTaxAmount(taxable float64, class fiscal.TaxClass) float64 {
	return round2(taxable * taxRates[class] / 100)
}

// round2 rounds to two decimal places, the currency precision on the wire.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
