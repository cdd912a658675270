package payload

// Wire payload shapes. Field order is fixed by these structs and is part of
// the canonical serialization the signature covers.

// SalePayload is the canonical body of a sale submission.
type SalePayload struct {
	TIN                   string `json:"tin"`
	BranchID              string `json:"bhfId"`
	InvoiceNumber         int64  `json:"invcNo"`
	OriginalInvoiceNumber int64  `json:"orgInvcNo"`
	CustomerTIN           string `json:"custTin,omitempty"`
	CustomerName          string `json:"custNm,omitempty"`
	SalesTypeCode         string `json:"salesTyCd"`
	ReceiptTypeCode       string `json:"rcptTyCd"`
	PaymentTypeCode       string `json:"pmtTyCd"`
	StatusCode            string `json:"salesSttsCd"`
	ConfirmedDate         string `json:"cfmDt"`
	SalesDate             string `json:"salesDt"`

	TotalItemCount int `json:"totItemCnt"`

	TaxableAmountA float64 `json:"taxblAmtA"`
	TaxableAmountB float64 `json:"taxblAmtB"`
	TaxableAmountC float64 `json:"taxblAmtC"`
	TaxableAmountD float64 `json:"taxblAmtD"`
	TaxableAmountE float64 `json:"taxblAmtE"`
	TaxRateA       float64 `json:"taxRtA"`
	TaxRateB       float64 `json:"taxRtB"`
	TaxRateC       float64 `json:"taxRtC"`
	TaxRateD       float64 `json:"taxRtD"`
	TaxRateE       float64 `json:"taxRtE"`
	TaxAmountA     float64 `json:"taxAmtA"`
	TaxAmountB     float64 `json:"taxAmtB"`
	TaxAmountC     float64 `json:"taxAmtC"`
	TaxAmountD     float64 `json:"taxAmtD"`
	TaxAmountE     float64 `json:"taxAmtE"`

	TotalTaxableAmount float64 `json:"totTaxblAmt"`
	TotalTaxAmount     float64 `json:"totTaxAmt"`
	TotalAmount        float64 `json:"totAmt"`

	Receipt SaleReceipt `json:"receipt"`
	Items   []LineEntry `json:"itemList"`
}

// SaleReceipt carries receipt-rendering fields echoed back by the authority.
type SaleReceipt struct {
	CustomerTIN       string `json:"custTin,omitempty"`
	PurchaserAccepted string `json:"prchrAcptcYn"`
}

// LineEntry is one classified line on the wire, shared by sale and
// purchase bodies.
type LineEntry struct {
	Sequence          int     `json:"itemSeq"`
	ItemCode          string  `json:"itemCd"`
	ItemClassCode     string  `json:"itemClsCd"`
	Name              string  `json:"itemNm"`
	Barcode           string  `json:"bcd,omitempty"`
	PackagingUnitCode string  `json:"pkgUnitCd"`
	Packaging         float64 `json:"pkg"`
	QuantityUnitCode  string  `json:"qtyUnitCd"`
	Quantity          float64 `json:"qty"`
	UnitPrice         float64 `json:"prc"`
	SupplyAmount      float64 `json:"splyAmt"`
	DiscountRate      float64 `json:"dcRt"`
	DiscountAmount    float64 `json:"dcAmt"`
	TaxTypeCode       string  `json:"taxTyCd"`
	TaxableAmount     float64 `json:"taxblAmt"`
	TaxAmount         float64 `json:"taxAmt"`
	TotalAmount       float64 `json:"totAmt"`
}

// PurchasePayload is the canonical body of a purchase confirmation. The
// same shape is produced whether derived from ledger lines or supplied
// structured by an external system.
type PurchasePayload struct {
	TIN                   string `json:"tin"`
	BranchID              string `json:"bhfId"`
	InvoiceNumber         int64  `json:"invcNo"`
	OriginalInvoiceNumber int64  `json:"orgInvcNo"`
	SupplierTIN           string `json:"spplrTin,omitempty"`
	SupplierName          string `json:"spplrNm,omitempty"`
	SupplierBranchID      string `json:"spplrBhfId,omitempty"`
	SupplierInvoiceNumber int64  `json:"spplrInvcNo,omitempty"`
	RegistrationTypeCode  string `json:"regTyCd"`
	ReceiptTypeCode       string `json:"rcptTyCd"`
	PaymentTypeCode       string `json:"pmtTyCd"`
	StatusCode            string `json:"pchsSttsCd"`
	ConfirmedDate         string `json:"cfmDt"`
	PurchaseDate          string `json:"pchsDt"`

	TotalItemCount int `json:"totItemCnt"`

	TaxableAmountA float64 `json:"taxblAmtA"`
	TaxableAmountB float64 `json:"taxblAmtB"`
	TaxableAmountC float64 `json:"taxblAmtC"`
	TaxableAmountD float64 `json:"taxblAmtD"`
	TaxableAmountE float64 `json:"taxblAmtE"`
	TaxRateA       float64 `json:"taxRtA"`
	TaxRateB       float64 `json:"taxRtB"`
	TaxRateC       float64 `json:"taxRtC"`
	TaxRateD       float64 `json:"taxRtD"`
	TaxRateE       float64 `json:"taxRtE"`
	TaxAmountA     float64 `json:"taxAmtA"`
	TaxAmountB     float64 `json:"taxAmtB"`
	TaxAmountC     float64 `json:"taxAmtC"`
	TaxAmountD     float64 `json:"taxAmtD"`
	TaxAmountE     float64 `json:"taxAmtE"`

	TotalTaxableAmount float64 `json:"totTaxblAmt"`
	TotalTaxAmount     float64 `json:"totTaxAmt"`
	TotalAmount        float64 `json:"totAmt"`

	Items []LineEntry `json:"itemList"`
}

// ItemPayload is the canonical body of an item registration.
type ItemPayload struct {
	TIN                 string  `json:"tin"`
	BranchID            string  `json:"bhfId"`
	Code                string  `json:"itemCd"`
	ClassCode           string  `json:"itemClsCd"`
	TypeCode            string  `json:"itemTyCd"`
	Name                string  `json:"itemNm"`
	Barcode             string  `json:"bcd,omitempty"`
	OriginCountryCode   string  `json:"orgnNatCd"`
	PackagingUnitCode   string  `json:"pkgUnitCd"`
	QuantityUnitCode    string  `json:"qtyUnitCd"`
	TaxTypeCode         string  `json:"taxTyCd"`
	DefaultPrice        float64 `json:"dftPrc"`
	InsuranceApplicable string  `json:"isrcAplcbYn"`
	InUse               string  `json:"useYn"`
	Remark              string  `json:"rmk,omitempty"`
}
