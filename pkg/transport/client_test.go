package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-etims/pkg/device"
	"github.com/sirosfoundation/go-etims/pkg/fiscal"
	"github.com/sirosfoundation/go-etims/pkg/protocol"
	"github.com/sirosfoundation/go-etims/pkg/signer"
)

func testCred(env device.Environment) *device.Credential {
	return &device.Credential{
		TIN:           "P000000045R",
		BranchID:      "00",
		CMCKey:        "dGVzdC1jbWMta2V5",
		ControlUnitID: "KRACU0100000001",
		Environment:   env,
	}
}

func testClient(baseURL string, timeout time.Duration) *Client {
	return NewClient(&Config{
		Timeout: timeout,
		BaseURLs: map[device.Environment]string{
			device.EnvTest: baseURL,
		},
	})
}

type salePing struct {
	InvoiceNumber int64 `json:"invcNo"`
}

func TestSubmitSuccess(t *testing.T) {
	var gotHeaders http.Header
	var gotBody []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = buf

		assert.Equal(t, "/saveTrnsSalesOsdc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"resultCd":"000","resultMsg":"Succeeded","resultDt":"20260106073000","data":{"invcNo":7,"curRcptNo":7,"intrlData":"YQ==","rcptSign":"SIG","sdcDateTime":"20260106073000"}}`))
	}))
	defer ts.Close()

	cred := testCred(device.EnvTest)
	outcome, err := testClient(ts.URL, 0).Submit(context.Background(), protocol.OpSaleSave, cred, &salePing{InvoiceNumber: 7})
	require.NoError(t, err)

	assert.Equal(t, KindSuccess, outcome.Kind)
	assert.Equal(t, protocol.ResultCodeOK, outcome.Code)
	assert.Equal(t, "20260106073000", outcome.ResultTimestamp)
	assert.NotEmpty(t, outcome.Data)

	// Authentication headers carry the device identity and a signature
	// over the exact body bytes
	assert.Equal(t, cred.TIN, gotHeaders.Get("tin"))
	assert.Equal(t, cred.BranchID, gotHeaders.Get("bhfid"))
	assert.Equal(t, cred.CMCKey, gotHeaders.Get("cmcKey"))
	assert.Equal(t, signer.Algorithm, gotHeaders.Get("signAlg"))
	assert.True(t, signer.Verify(cred.CMCKey, gotBody, gotHeaders.Get("sign")))
}

func TestSubmitBusinessRejection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resultCd":"910","resultMsg":"Request parameter error","resultDt":"20260106073000"}`))
	}))
	defer ts.Close()

	outcome, err := testClient(ts.URL, 0).Submit(context.Background(), protocol.OpSaleSave, testCred(device.EnvTest), &salePing{})
	require.NoError(t, err)

	assert.Equal(t, KindRejected, outcome.Kind)
	assert.Equal(t, "910", outcome.Code)
	assert.Equal(t, "Request parameter error", outcome.Message)
}

func TestSubmitHTTPErrorIsRejection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway exploded", http.StatusBadGateway)
	}))
	defer ts.Close()

	outcome, err := testClient(ts.URL, 0).Submit(context.Background(), protocol.OpSaleSave, testCred(device.EnvTest), &salePing{})
	require.NoError(t, err)

	assert.Equal(t, KindRejected, outcome.Kind)
	assert.Equal(t, "502", outcome.Code)
	assert.Contains(t, outcome.Message, "gateway exploded")
}

func TestSubmitMalformedResponse(t *testing.T) {
	tests := map[string]string{
		"not json":       `<html>maintenance</html>`,
		"missing result": `{"unexpected":true}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer ts.Close()

			outcome, err := testClient(ts.URL, 0).Submit(context.Background(), protocol.OpSaleSave, testCred(device.EnvTest), &salePing{})
			require.NoError(t, err)

			assert.Equal(t, KindTransportError, outcome.Kind)
			assert.Equal(t, ErrorMalformedResponse, outcome.Transport)
			assert.Equal(t, protocol.CodeMalformedResponse, outcome.Code)
		})
	}
}

func TestSubmitTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer ts.Close()

	outcome, err := testClient(ts.URL, 50*time.Millisecond).Submit(context.Background(), protocol.OpSaleSave, testCred(device.EnvTest), &salePing{})
	require.NoError(t, err)

	assert.Equal(t, KindTransportError, outcome.Kind)
	assert.Equal(t, ErrorTimeout, outcome.Transport)
	assert.Equal(t, protocol.CodeTimeout, outcome.Code)
}

func TestSubmitConnectionRefused(t *testing.T) {
	// Nothing listens on this port
	outcome, err := testClient("http://127.0.0.1:1/etims/api/", 0).Submit(context.Background(), protocol.OpSaleSave, testCred(device.EnvTest), &salePing{})
	require.NoError(t, err)

	assert.Equal(t, KindTransportError, outcome.Kind)
	assert.Equal(t, ErrorConnection, outcome.Transport)
	assert.Equal(t, protocol.CodeConnectionError, outcome.Code)
}

func TestSubmitRequiresCredential(t *testing.T) {
	cred := testCred(device.EnvTest)
	cred.CMCKey = ""

	_, err := NewClient(nil).Submit(context.Background(), protocol.OpSaleSave, cred, &salePing{})
	assert.ErrorIs(t, err, device.ErrNotInitialized)
}

func TestDemoNeverTouchesNetwork(t *testing.T) {
	// The override points at a dead address; demo must not dial it
	client := testClient("http://127.0.0.1:1/", 0)
	outcome, err := client.Submit(context.Background(), protocol.OpSaleSave, testCred(device.EnvDemo), &salePing{InvoiceNumber: 3})
	require.NoError(t, err)

	assert.Equal(t, KindSuccess, outcome.Kind)
}

func TestDemoResponderReceipt(t *testing.T) {
	responder := NewResponder()
	outcome, err := responder.Submit(context.Background(), protocol.OpSaleSave, testCred(device.EnvDemo), &salePing{InvoiceNumber: 42})
	require.NoError(t, err)

	require.Equal(t, KindSuccess, outcome.Kind)
	var receipt protocol.ReceiptData
	require.NoError(t, outcome.DecodeData(&receipt))
	assert.Equal(t, int64(42), receipt.InvoiceNumber)
	assert.Equal(t, int64(42), receipt.ReceiptNumber)
	assert.Contains(t, receipt.Signature, "DEMO_SIGNATURE_")
	assert.NotEmpty(t, receipt.InternalData)
	assert.NotEmpty(t, receipt.ControlUnitTime)

	// Deterministic for the same payload
	again, err := responder.Submit(context.Background(), protocol.OpSaleSave, testCred(device.EnvDemo), &salePing{InvoiceNumber: 42})
	require.NoError(t, err)
	var receipt2 protocol.ReceiptData
	require.NoError(t, again.DecodeData(&receipt2))
	assert.Equal(t, receipt.Signature, receipt2.Signature)
}

func TestOutcomeKinds(t *testing.T) {
	assert.True(t, Success(&protocol.Response{ResultCode: "000"}).Succeeded())
	assert.False(t, Rejected("910", "bad", "").Succeeded())
	assert.False(t, Failure(ErrorTimeout, "slow").Succeeded())

	assert.Equal(t, fiscal.OutcomeRejected, Rejected("910", "bad", "").FiscalOutcome())
	assert.Equal(t, fiscal.OutcomeTransportError, Failure(ErrorTimeout, "slow").FiscalOutcome())
}
