package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-etims/pkg/device"
)

func TestFormatTimeUsesReferenceTimezone(t *testing.T) {
	// 04:30 UTC is 07:30 in Nairobi (UTC+3, no DST)
	instant := time.Date(2026, 1, 6, 4, 30, 0, 0, time.UTC)
	assert.Equal(t, "20260106073000", FormatTime(instant))
}

func TestParseTimeRoundTrip(t *testing.T) {
	instant := time.Date(2026, 1, 6, 4, 30, 17, 0, time.UTC)

	parsed, err := ParseTime(FormatTime(instant))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(instant))
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	_, err := ParseTime("not-a-timestamp")
	assert.Error(t, err)
}

func TestBaseURLPerEnvironment(t *testing.T) {
	assert.Contains(t, BaseURL(device.EnvProduction), "etims.kra.go.ke")
	assert.Contains(t, BaseURL(device.EnvTest), "etims-test")
	assert.Contains(t, BaseURL(device.EnvDemo), "localhost")
}

func TestResponseOK(t *testing.T) {
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(`{"resultCd":"000","resultMsg":"Succeeded","resultDt":"20260106073000"}`), &resp))
	assert.True(t, resp.OK())

	require.NoError(t, json.Unmarshal([]byte(`{"resultCd":"910","resultMsg":"Request parameter error"}`), &resp))
	assert.False(t, resp.OK())
}

func TestHintCoverage(t *testing.T) {
	// Every synthetic transport code carries an action hint
	for _, code := range []string{CodeTimeout, CodeConnectionError, CodeMalformedResponse} {
		assert.NotEmpty(t, Hint(code), "code %s", code)
	}

	// Unknown codes fall back to the generic hint
	assert.NotEmpty(t, Hint("424242"))
}

func TestReceiptDataDecoding(t *testing.T) {
	raw := []byte(`{"invcNo":7,"curRcptNo":12,"totRcptNo":40,"intrlData":"YmxvYg==","rcptSign":"SIG","sdcDateTime":"20260106073000"}`)

	var data ReceiptData
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, int64(7), data.InvoiceNumber)
	assert.Equal(t, int64(12), data.ReceiptNumber)
	assert.Equal(t, "SIG", data.Signature)
	assert.Equal(t, "20260106073000", data.ControlUnitTime)
}
