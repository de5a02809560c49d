package controllers_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"syncledger-backend/controllers"
	"syncledger-backend/ledger"
	"syncledger-backend/middlewares"
	"syncledger-backend/routes"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// The middleware caches the secret on first use; fix it for the whole
	// test binary.
	os.Setenv("JWT_SECRET", "test-secret")
}

func newTestApp(t *testing.T, led *ledger.Ledger) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: middlewares.ErrorHandler})
	routes.Register(app, &controllers.ApprovalController{Ledger: led})
	return app
}

func bearerToken(t *testing.T) string {
	t.Helper()
	token, err := middlewares.GenerateJWT("svc-test")
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(t *testing.T, app *fiber.App, method, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(raw, &envelope), "body: %s", raw)
	return resp, envelope
}

func TestApprovalEndpointsLifecycle(t *testing.T) {
	app := newTestApp(t, ledger.NewSimulated(nil))
	token := bearerToken(t)

	// Create
	resp, env := doJSON(t, app, "POST", "/api/approvals", token,
		`{"approval_id":"A1","request_id":"R1","requester_id":"U1","owner_id":"U2","request_type":"gcp","licence_key":"GS1-1"}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, env["success"])
	data := env["data"].(map[string]any)
	assert.Equal(t, "A1", data["approval_id"])
	assert.Equal(t, true, data["recorded"])
	receipt := data["receipt"].(map[string]any)
	assert.NotEmpty(t, receipt["tx_hash"])

	// Read
	resp, env = doJSON(t, app, "GET", "/api/approvals/A1", "", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	rec := env["data"].(map[string]any)
	assert.Equal(t, "R1", rec["request_id"])
	assert.Equal(t, true, rec["is_active"])

	// Count
	resp, env = doJSON(t, app, "GET", "/api/approvals/_count", "", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, env["data"].(map[string]any)["count"])

	// Deactivate
	resp, env = doJSON(t, app, "POST", "/api/approvals/A1/deactivate", token, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, env["data"].(map[string]any)["recorded"])

	resp, env = doJSON(t, app, "GET", "/api/approvals/A1", "", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, env["data"].(map[string]any)["is_active"])

	// Second deactivate conflicts
	resp, env = doJSON(t, app, "POST", "/api/approvals/A1/deactivate", token, "")
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, false, env["success"])

	// Duplicate insert conflicts and leaves the record untouched
	resp, _ = doJSON(t, app, "POST", "/api/approvals", token,
		`{"approval_id":"A1","request_id":"R9","requester_id":"U1","owner_id":"U2","request_type":"gcp"}`)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	_, env = doJSON(t, app, "GET", "/api/approvals/A1", "", "")
	assert.Equal(t, "R1", env["data"].(map[string]any)["request_id"])
}

func TestCreateApprovalDerivesMissingID(t *testing.T) {
	app := newTestApp(t, ledger.NewSimulated(nil))

	resp, env := doJSON(t, app, "POST", "/api/approvals", bearerToken(t),
		`{"request_id":"R1","requester_id":"U1","owner_id":"U2","request_type":"excel"}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	id, _ := env["data"].(map[string]any)["approval_id"].(string)
	assert.Len(t, id, 32, "server derives a 32-hex-char id")
}

func TestCreateApprovalRejectActionIsNoOp(t *testing.T) {
	app := newTestApp(t, ledger.NewSimulated(nil))

	resp, env := doJSON(t, app, "POST", "/api/approvals", bearerToken(t),
		`{"request_id":"R1","requester_id":"U1","owner_id":"U2","request_type":"gcp","action":"reject"}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, env["success"])
	assert.Equal(t, "no write needed", env["message"])
	assert.Equal(t, false, env["data"].(map[string]any)["recorded"])

	// Nothing was written.
	_, env = doJSON(t, app, "GET", "/api/approvals/_count", "", "")
	assert.EqualValues(t, 0, env["data"].(map[string]any)["count"])
}

func TestCreateApprovalValidation(t *testing.T) {
	app := newTestApp(t, ledger.NewSimulated(nil))
	token := bearerToken(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing request_id", `{"requester_id":"U1","owner_id":"U2","request_type":"gcp"}`},
		{"unknown request_type", `{"request_id":"R1","requester_id":"U1","owner_id":"U2","request_type":"ftp"}`},
		{"bad action", `{"request_id":"R1","requester_id":"U1","owner_id":"U2","request_type":"gcp","action":"maybe"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := doJSON(t, app, "POST", "/api/approvals", token, tt.body)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, false, env["success"])
		})
	}
}

func TestMutationsRequireAuth(t *testing.T) {
	app := newTestApp(t, ledger.NewSimulated(nil))

	resp, env := doJSON(t, app, "POST", "/api/approvals", "",
		`{"request_id":"R1","requester_id":"U1","owner_id":"U2","request_type":"gcp"}`)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, env["success"])

	resp, _ = doJSON(t, app, "POST", "/api/approvals/A1/deactivate", "", "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestGetUnknownApprovalIs404(t *testing.T) {
	app := newTestApp(t, ledger.NewSimulated(nil))

	resp, env := doJSON(t, app, "GET", "/api/approvals/nope", "", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, env["success"])
	assert.NotEmpty(t, env["message"])
}

func TestSearchApprovalsFilters(t *testing.T) {
	led := ledger.NewSimulated(nil)
	app := newTestApp(t, led)
	token := bearerToken(t)

	for i, typ := range []string{"gcp", "excel", "gcp"} {
		body := fmt.Sprintf(`{"approval_id":"A%d","request_id":"R%d","requester_id":"alice","owner_id":"bob","request_type":%q}`, i, i, typ)
		resp, _ := doJSON(t, app, "POST", "/api/approvals", token, body)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}
	resp, _ := doJSON(t, app, "POST", "/api/approvals/A2/deactivate", token, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, env := doJSON(t, app, "GET", "/api/approvals?request_type=gcp&is_active=true", "", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := env["data"].(map[string]any)
	assert.EqualValues(t, 3, data["total_scanned"])
	matched := data["matched"].([]any)
	require.Len(t, matched, 1)
	assert.Equal(t, "A0", matched[0].(map[string]any)["approval_id"])

	// Bad filter values are a 400, not a silent full scan.
	resp, _ = doJSON(t, app, "GET", "/api/approvals?is_active=maybe", "", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp, _ = doJSON(t, app, "GET", "/api/approvals?from=yesterday", "", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestDisabledLedgerAnswers503(t *testing.T) {
	led, err := ledger.Connect(ledger.Config{Enabled: false}, nil)
	require.NoError(t, err)
	app := newTestApp(t, led)

	resp, env := doJSON(t, app, "GET", "/api/approvals/_count", "", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, false, env["success"])
}
