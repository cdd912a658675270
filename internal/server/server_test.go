package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-etims/internal/config"
	"github.com/sirosfoundation/go-etims/internal/credentials"
	"github.com/sirosfoundation/go-etims/internal/storage/memory"
	"github.com/sirosfoundation/go-etims/pkg/device"
	"github.com/sirosfoundation/go-etims/pkg/fiscal"
	"github.com/sirosfoundation/go-etims/pkg/oscu"
)

const testDeviceID = "KRACU0100000001"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := memory.NewStore()
	creds := credentials.NewStaticProvider(&device.Credential{
		TIN:           "P000000045R",
		BranchID:      "00",
		CMCKey:        "dGVzdC1jbWMta2V5",
		ControlUnitID: testDeviceID,
		Environment:   device.EnvDemo,
	})

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	submitter, err := oscu.NewClient(&oscu.Config{
		Store:    store,
		Counters: store,
		Logger:   logger,
	})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.AdminKey = "admin-secret"
	srv, err := New(cfg, store, creds, submitter, logger)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]json.RawMessage {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func saleDocument() *fiscal.Document {
	return &fiscal.Document{
		Counterparty: fiscal.Counterparty{TIN: "A123456789Z", Name: "Walk-in"},
		Currency:     "KES",
		Lines: []fiscal.LineItem{{
			ItemCode:          "KE1NTXU0000001",
			ItemClassCode:     "5059690800",
			Name:              "Widget",
			PackagingUnitCode: "NT",
			QuantityUnitCode:  "U",
			Quantity:          1,
			UnitPrice:         200,
			TaxClasses:        []fiscal.TaxClass{fiscal.TaxClassB},
		}},
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmitSale(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/devices/"+testDeviceID+"/sales", saleDocument())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)

	var result fiscal.TransmissionResult
	require.NoError(t, json.Unmarshal(body["result"], &result))
	assert.Equal(t, fiscal.OutcomeSuccess, result.Outcome)
	assert.Equal(t, int64(1), result.Number)
	assert.NotEmpty(t, result.ReceiptSignature)

	var doc fiscal.Document
	require.NoError(t, json.Unmarshal(body["document"], &doc))
	assert.Equal(t, fiscal.StatusConfirmed, doc.Status)

	// The document and its attempt history are retrievable afterwards
	got, err := http.Get(ts.URL + "/api/devices/" + testDeviceID + "/documents/" + doc.ID)
	require.NoError(t, err)
	defer got.Body.Close()
	assert.Equal(t, http.StatusOK, got.StatusCode)

	history, err := http.Get(ts.URL + "/api/devices/" + testDeviceID + "/documents/" + doc.ID + "/results")
	require.NoError(t, err)
	historyBody := decodeBody(t, history)
	var results []fiscal.TransmissionResult
	require.NoError(t, json.Unmarshal(historyBody["results"], &results))
	assert.Len(t, results, 1)
}

func TestSubmitSaleBlockingValidation(t *testing.T) {
	ts := newTestServer(t)

	doc := saleDocument()
	doc.Validations = []fiscal.ValidationMessage{{Message: "missing customer PIN", Blocking: true}}

	resp := postJSON(t, ts.URL+"/api/devices/"+testDeviceID+"/sales", doc)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSubmitSaleUnknownDevice(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/devices/KRACU0999999999/sales", saleDocument())
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConfirmPurchase(t *testing.T) {
	ts := newTestServer(t)

	doc := saleDocument()
	req := map[string]any{"document": doc}
	resp := postJSON(t, ts.URL+"/api/devices/"+testDeviceID+"/purchases", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)

	var result fiscal.TransmissionResult
	require.NoError(t, json.Unmarshal(body["result"], &result))
	assert.Equal(t, fiscal.OutcomeSuccess, result.Outcome)
}

func TestRegisterItem(t *testing.T) {
	ts := newTestServer(t)

	item := &fiscal.Item{
		Code:              "KE1NTXU0000001",
		ClassCode:         "5059690800",
		Name:              "Widget",
		TypeCode:          "2",
		OriginCountryCode: "KE",
		PackagingUnitCode: "NT",
		QuantityUnitCode:  "U",
		TaxClasses:        []fiscal.TaxClass{fiscal.TaxClassB},
		DefaultPrice:      200,
	}
	resp := postJSON(t, ts.URL+"/api/devices/"+testDeviceID+"/items", item)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)

	var result fiscal.TransmissionResult
	require.NoError(t, json.Unmarshal(body["result"], &result))
	assert.Equal(t, fiscal.OutcomeSuccess, result.Outcome)
}

func TestListDocumentsFilter(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/devices/"+testDeviceID+"/sales", saleDocument())
	resp.Body.Close()

	list, err := http.Get(ts.URL + "/api/devices/" + testDeviceID + "/documents?kind=sale&status=confirmed")
	require.NoError(t, err)
	body := decodeBody(t, list)

	var docs []fiscal.Document
	require.NoError(t, json.Unmarshal(body["documents"], &docs))
	assert.Len(t, docs, 1)
}

func TestAdminRequiresKey(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/admin/devices")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/admin/devices", nil)
	require.NoError(t, err)
	req.Header.Set("X-Admin-Key", "admin-secret")
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body := decodeBody(t, authed)

	var devices []string
	require.NoError(t, json.Unmarshal(body["devices"], &devices))
	assert.Equal(t, []string{testDeviceID}, devices)
}
