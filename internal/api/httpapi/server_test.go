package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/services/admin"
	"github.com/BearBump/CargoLedger/internal/services/bookings"
	"github.com/BearBump/CargoLedger/internal/services/ledger"
	"github.com/BearBump/CargoLedger/internal/services/reports"
	"github.com/BearBump/CargoLedger/internal/storage/memstore"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type apiEnv struct {
	t   *testing.T
	srv *httptest.Server
	st  *memstore.Store
}

func newEnv(t *testing.T) *apiEnv {
	t.Helper()
	st := memstore.New()
	require.NoError(t, st.UpsertBranches(t.Context(), []models.Branch{
		{Code: "HO", Name: "Head Office"},
		{Code: "KA", Name: "Kalyan"},
		{Code: "PA", Name: "Panvel"},
		{Code: "BA", Name: "Badlapur"},
	}))
	h := NewHandler(
		bookings.New(st, nil, bookings.Options{}),
		ledger.NewService(st),
		admin.New(st),
		reports.New(st),
	)
	srv := httptest.NewServer(NewRouter(h, RouterOptions{JWTSecret: testSecret}))
	t.Cleanup(srv.Close)
	return &apiEnv{t: t, srv: srv, st: st}
}

func token(t *testing.T, u *models.User) string {
	t.Helper()
	tok, err := MintToken(testSecret, u, time.Hour)
	require.NoError(t, err)
	return tok
}

var (
	superAdmin = &models.User{ID: "root", Role: models.RoleSuperAdmin}
	hoDesk     = &models.User{ID: "ho-desk", Role: models.RoleBranch, HomeBranch: "HO", AllowedReports: []models.ReportType{models.ReportBookings}}
	kaDesk     = &models.User{ID: "ka-desk", Role: models.RoleBranch, HomeBranch: "KA"}
	paDesk     = &models.User{ID: "pa-desk", Role: models.RoleBranch, HomeBranch: "PA"}
)

func (e *apiEnv) do(u *models.User, method, path string, body any) (*http.Response, map[string]any) {
	e.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+token(e.t, u))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func bookingBody(from, to, payment string) map[string]any {
	return map[string]any{
		"originBranch":      from,
		"destinationBranch": to,
		"sender":            map[string]any{"name": "Ravi", "mobile": "9800000001"},
		"receiver":          map[string]any{"name": "Kiran", "mobile": "9800000002"},
		"parcels": []map[string]any{
			{"quantity": 2, "category": "Box", "rate": "150"},
		},
		"costs":       map[string]any{"freight": "400", "handling": "60", "hamali": "40"},
		"paymentType": payment,
	}
}

func TestAPI_HealthAndDocsArePublic(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.do(nil, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := e.do(nil, http.MethodGet, "/swagger.json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "2.0", body["swagger"])
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	e := newEnv(t)
	resp, body := e.do(nil, http.MethodGet, "/bookings", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "unauthenticated", body["error"])

	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/bookings", nil)
	bad, err := MintToken([]byte("other-secret"), hoDesk, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bad)
	r2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	r2.Body.Close()
	require.Equal(t, http.StatusUnauthorized, r2.StatusCode)
}

func TestAPI_RejectsUnknownRoleAndNoneAlg(t *testing.T) {
	_, err := parseToken(testSecret, signed(t, Claims{Role: "GOD", RegisteredClaims: jwt.RegisteredClaims{Subject: "x"}}))
	require.ErrorIs(t, err, models.ErrUnauthenticated)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: "SUPER_ADMIN", RegisteredClaims: jwt.RegisteredClaims{Subject: "x"}}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = parseToken(testSecret, none)
	require.ErrorIs(t, err, models.ErrUnauthenticated)

	u, err := parseToken(testSecret, signed(t, Claims{
		Role: "branch", Branch: "KA", AllowedBranches: []string{"BA"}, AllowedReports: []string{"ledger"},
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ka-desk"},
	}))
	require.NoError(t, err)
	require.Equal(t, models.RoleBranch, u.Role)
	require.Equal(t, []models.BranchID{"BA"}, u.AllowedBranches)
	require.Equal(t, []models.ReportType{models.ReportLedger}, u.AllowedReports)
}

func TestAPI_TokenClaimsAreNormalized(t *testing.T) {
	e := newEnv(t)
	e.do(hoDesk, http.MethodPost, "/bookings", bookingBody("HO", "KA", "Paid"))

	tok := signed(t, Claims{
		Role: "BRANCH", Branch: " ho ", AllowedBranches: []string{"ka", ""}, AllowedReports: []string{"Bookings", " "},
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ho-mixed", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	u, err := parseToken(testSecret, tok)
	require.NoError(t, err)
	require.Equal(t, models.BranchID("HO"), u.HomeBranch)
	require.Equal(t, []models.BranchID{"KA"}, u.AllowedBranches)
	require.Equal(t, []models.ReportType{models.ReportBookings}, u.AllowedReports)

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/reports/bookings", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_CreateRejectsMoneyBeyondStoredPrecision(t *testing.T) {
	e := newEnv(t)

	body := bookingBody("HO", "KA", "To Pay")
	body["costs"] = map[string]any{"freight": "400.005", "handling": "1000000000000", "hamali": "0"}
	body["parcels"] = []map[string]any{{"quantity": 1, "category": "Box", "rate": "0.0001", "weight": "2.5005"}}
	resp, out := e.do(hoDesk, http.MethodPost, "/bookings", body)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields := out["fields"].(map[string]any)
	require.Contains(t, fields, "costs.freight")
	require.Contains(t, fields, "costs.handling")
	require.Contains(t, fields, "parcels[0].rate")
	require.Contains(t, fields, "parcels[0].weight")

	body = bookingBody("HO", "KA", "To Pay")
	body["costs"] = map[string]any{"freight": "400.50", "handling": "60", "hamali": "40.25"}
	resp, out = e.do(hoDesk, http.MethodPost, "/bookings", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	costs := out["costs"].(map[string]any)
	require.Equal(t, "500.75", costs["total"])
}

func signed(t *testing.T, c Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(testSecret)
	require.NoError(t, err)
	return s
}

func TestAPI_CreateValidationReportsFields(t *testing.T) {
	e := newEnv(t)
	body := bookingBody("HO", "HO", "Paid")
	body["parcels"] = []map[string]any{{"quantity": 0, "category": "Crate", "rate": "1"}}

	resp, out := e.do(hoDesk, http.MethodPost, "/bookings", body)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields := out["fields"].(map[string]any)
	require.Contains(t, fields, "parcels[0].quantity")

	body["parcels"] = []map[string]any{{"quantity": 1, "category": "Crate", "rate": "1"}}
	resp, out = e.do(hoDesk, http.MethodPost, "/bookings", body)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields = out["fields"].(map[string]any)
	require.Contains(t, fields, "destinationBranch")
	require.Contains(t, fields, "parcels[0].category")

	resp, out = e.do(hoDesk, http.MethodPost, "/bookings", strings.Repeat("x", 3))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, out["fields"], "body")
}

func TestAPI_ToPayDeliveryFlow(t *testing.T) {
	e := newEnv(t)

	resp, b := e.do(hoDesk, http.MethodPost, "/bookings", bookingBody("HO", "KA", "To Pay"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "HO-000001", b["lrNumber"])
	require.Equal(t, "BOOKED", b["status"])
	require.Equal(t, "500", b["costs"].(map[string]any)["total"])

	resp, _ = e.do(kaDesk, http.MethodPatch, "/bookings/1/status", map[string]any{"status": "In Transit"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode, "destination has no custody while BOOKED")

	resp, _ = e.do(hoDesk, http.MethodPatch, "/bookings/1/status", map[string]any{"status": "In Transit"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.do(kaDesk, http.MethodPatch, "/bookings/1/status", map[string]any{"status": "arrived"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out := e.do(kaDesk, http.MethodPatch, "/bookings/1/status", map[string]any{"status": "DELIVERED", "collectedBy": "Kiran"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	booking := out["booking"].(map[string]any)
	require.Equal(t, "DELIVERED", booking["status"])
	require.Equal(t, "Delivered", booking["deliveryRemark"])
	posting := out["ledgerTransaction"].(map[string]any)
	require.Equal(t, "KA", posting["branch"])
	require.Equal(t, "500", posting["amount"])

	resp, out = e.do(kaDesk, http.MethodPatch, "/bookings/1/status", map[string]any{"status": "DELIVERED"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "invalid_transition", out["error"])

	resp, out = e.do(kaDesk, http.MethodGet, "/ledger", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out["transactions"], 1)
	bal := out["balances"].([]any)[0].(map[string]any)
	require.Equal(t, "500", bal["balance"])

	// the origin desk follows the collection made on its own booking
	resp, out = e.do(hoDesk, http.MethodGet, "/ledger", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out["transactions"], 1)

	resp, out = e.do(paDesk, http.MethodGet, "/ledger", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, out["transactions"])
}

func TestAPI_OutOfScopeSeesNothing(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.do(kaDesk, http.MethodPost, "/bookings", bookingBody("KA", "BA", "Paid"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, out := e.do(paDesk, http.MethodGet, "/bookings/1", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.NotContains(t, out, "lrNumber")

	resp, _ = e.do(paDesk, http.MethodGet, "/bookings/lr/KA-000001", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = e.do(paDesk, http.MethodPatch, "/bookings/1/status", map[string]any{"status": "CANCELLED"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, out = e.do(paDesk, http.MethodGet, "/bookings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, out["bookings"])

	resp, _ = e.do(paDesk, http.MethodGet, "/bookings/99", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ListFiltersAndParams(t *testing.T) {
	e := newEnv(t)
	for _, to := range []string{"KA", "PA"} {
		resp, _ := e.do(hoDesk, http.MethodPost, "/bookings", bookingBody("HO", to, "Paid"))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, out := e.do(hoDesk, http.MethodGet, "/bookings?toBranch=pa", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out["bookings"], 1)

	today := time.Now().UTC().Format(dateOnly)
	resp, out = e.do(hoDesk, http.MethodGet, "/bookings?status=booked&from="+today+"&to="+today, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out["bookings"], 2)

	resp, out = e.do(hoDesk, http.MethodGet, "/bookings?status=lost&from=yesterday&limit=-1", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields := out["fields"].(map[string]any)
	require.Contains(t, fields, "status")
	require.Contains(t, fields, "from")
	require.Contains(t, fields, "limit")

	resp, _ = e.do(hoDesk, http.MethodGet, "/bookings/abc", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_EditStaleVersionAndPurge(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.do(hoDesk, http.MethodPost, "/bookings", bookingBody("HO", "KA", "Paid"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	edit := bookingBody("HO", "KA", "To Pay")
	delete(edit, "originBranch")
	delete(edit, "destinationBranch")
	edit["expectedVersion"] = 1
	resp, out := e.do(hoDesk, http.MethodPut, "/bookings/1", edit)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "TO_PAY", out["paymentType"])

	resp, out = e.do(hoDesk, http.MethodPut, "/bookings/1", edit)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "concurrent_modification", out["error"])

	resp, _ = e.do(hoDesk, http.MethodDelete, "/bookings/1", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = e.do(superAdmin, http.MethodDelete, "/bookings/1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = e.do(superAdmin, http.MethodGet, "/bookings/1", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_AdminEndpoints(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.do(hoDesk, http.MethodPost, "/bookings", bookingBody("HO", "KA", "To Pay"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = e.do(hoDesk, http.MethodPut, "/admin/counters/HO/booking/lr_number", map[string]any{"value": 50})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, out := e.do(superAdmin, http.MethodPut, "/admin/counters/ho/booking/lr_number", map[string]any{"value": 50})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, out["previous"])

	resp, _ = e.do(superAdmin, http.MethodPut, "/admin/counters/HO/booking/lr_number", map[string]any{"value": 10})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, out = e.do(hoDesk, http.MethodPost, "/bookings", bookingBody("HO", "PA", "Paid"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "HO-000051", out["lrNumber"])

	resp, _ = e.do(hoDesk, http.MethodGet, "/audit", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, out = e.do(superAdmin, http.MethodGet, "/audit?entityType=sequence_counter", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out["entries"], 1)
}

func TestAPI_ReverseTransaction(t *testing.T) {
	e := newEnv(t)
	e.do(hoDesk, http.MethodPost, "/bookings", bookingBody("HO", "KA", "To Pay"))
	e.do(hoDesk, http.MethodPatch, "/bookings/1/status", map[string]any{"status": "IN_TRANSIT"})
	e.do(kaDesk, http.MethodPatch, "/bookings/1/status", map[string]any{"status": "ARRIVED"})
	resp, _ := e.do(kaDesk, http.MethodPatch, "/bookings/1/status", map[string]any{"status": "DELIVERED"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(kaDesk, http.MethodPost, "/ledger/transactions/1/reverse", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, out := e.do(superAdmin, http.MethodPost, "/ledger/transactions/1/reverse", map[string]any{"note": "wrong branch"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "DEBIT", out["type"])

	resp, out = e.do(superAdmin, http.MethodPost, "/ledger/transactions/1/reverse", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "already_reversed", out["error"])

	resp, out = e.do(superAdmin, http.MethodGet, "/ledger?branch=KA", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	bal := out["balances"].([]any)[0].(map[string]any)
	require.Equal(t, "0", bal["balance"])
}

func TestAPI_ReportsAreGated(t *testing.T) {
	e := newEnv(t)
	e.do(hoDesk, http.MethodPost, "/bookings", bookingBody("HO", "KA", "Paid"))

	resp, out := e.do(hoDesk, http.MethodGet, "/reports/bookings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, out["bookings"].(map[string]any)["count"])

	resp, _ = e.do(hoDesk, http.MethodGet, "/reports/ledger", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = e.do(superAdmin, http.MethodGet, "/reports/unknown", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
