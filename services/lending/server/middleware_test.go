package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"lendcore/native/lending"
	"lendcore/native/lending/fixedpoint"
)

func TestRoleGate(t *testing.T) {
	risk := common.HexToAddress("0xbb")
	gate, err := NewRoleGate(map[string][]string{
		admin.Hex(): {RolePoolAdmin},
		risk.Hex():  {RoleRiskAdmin, " " + RoleEmergencyAdmin},
	})
	require.NoError(t, err)

	for _, action := range []lending.Action{lending.ActionListReserve, lending.ActionConfigureRisk, lending.ActionEmergency} {
		require.True(t, gate.IsAuthorized(admin, action, usdc), action)
	}
	require.False(t, gate.IsAuthorized(risk, lending.ActionListReserve, usdc))
	require.True(t, gate.IsAuthorized(risk, lending.ActionConfigureRisk, usdc))
	require.Equal(t, []string{"configure_risk", "emergency"}, gate.Actions(risk))
	require.False(t, gate.IsAuthorized(alice, lending.ActionEmergency, usdc))

	var nilGate *RoleGate
	require.False(t, nilGate.IsAuthorized(admin, lending.ActionEmergency, usdc))

	_, err = NewRoleGate(map[string][]string{admin.Hex(): {"superuser"}})
	require.Error(t, err)
	_, err = NewRoleGate(map[string][]string{"admin": {RolePoolAdmin}})
	require.Error(t, err)
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 2})
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	hit := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/reserves", nil)
		req.RemoteAddr = ip + ":4242"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusNoContent, hit("10.0.0.1"))
	require.Equal(t, http.StatusNoContent, hit("10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1"))
	require.Equal(t, http.StatusNoContent, hit("10.0.0.2"))

	now = now.Add(time.Second)
	require.Equal(t, http.StatusNoContent, hit("10.0.0.1"))

	now = now.Add(10 * time.Minute)
	hit("10.0.0.3")
	require.Len(t, limiter.visitors, 1)
}

func TestRateLimiterDisabled(t *testing.T) {
	var limiter *RateLimiter
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestDisabledAuthUsesCallerHeader(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Disabled: true}, nil)
	var seen common.Address
	handler := auth.Middleware(ScopeWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		require.True(t, ok)
		seen = p.Address
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/supply", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/supply", nil)
	req.Header.Set(callerHeader, alice.Hex())
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, alice, seen)
}

func TestExtractBearer(t *testing.T) {
	require.Equal(t, "abc", extractBearer("Bearer abc"))
	require.Equal(t, "abc", extractBearer("bearer  abc "))
	require.Empty(t, extractBearer("Basic abc"))
	require.Empty(t, extractBearer("Bearer"))
	require.Empty(t, extractBearer(""))
}

func TestAmountJSON(t *testing.T) {
	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"1234"`), &a))
	require.Equal(t, "1234", a.Dec())
	require.NoError(t, json.Unmarshal([]byte(`"0x10"`), &a))
	require.Equal(t, "16", a.Dec())
	require.NoError(t, json.Unmarshal([]byte(`" MAX "`), &a))
	require.True(t, a.ptr().Eq(fixedpoint.MaxUint256))

	require.Error(t, json.Unmarshal([]byte(`1234`), &a))
	require.Error(t, json.Unmarshal([]byte(`"-1"`), &a))
	require.Error(t, json.Unmarshal([]byte(`"1e6"`), &a))

	out, err := json.Marshal(newAmount(fixedpoint.Ray))
	require.NoError(t, err)
	require.Equal(t, `"1000000000000000000000000000"`, string(out))
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&lending.Error{Kind: lending.ErrReserveStateInvalid, Code: lending.ErrModulePaused}, http.StatusServiceUnavailable},
		{&lending.Error{Kind: lending.ErrReserveStateInvalid, Code: lending.ErrReserveNotListed}, http.StatusNotFound},
		{&lending.Error{Kind: lending.ErrUnauthorized, Code: lending.ErrCallerNotAuthorized}, http.StatusForbidden},
		{&lending.Error{Kind: lending.ErrAmountInvalid, Code: lending.ErrInvalidAmount}, http.StatusBadRequest},
		{&lending.Error{Kind: lending.ErrParameterOutOfRange, Code: lending.ErrInvalidReserveParams}, http.StatusBadRequest},
		{&lending.Error{Kind: lending.ErrReserveStateInvalid, Code: lending.ErrReserveFrozen}, http.StatusConflict},
		{&lending.Error{Kind: lending.ErrHealthFactorAboveLiquidationBound, Code: lending.ErrHealthFactorNotBelowThreshold}, http.StatusConflict},
		{&lending.Error{Kind: lending.ErrCapExceeded, Code: lending.ErrSupplyCapExceeded}, http.StatusUnprocessableEntity},
		{&lending.Error{Kind: lending.ErrHealthFactorTooLow, Code: lending.ErrHealthFactorBelowThreshold}, http.StatusUnprocessableEntity},
		{&lending.Error{Kind: lending.ErrInternal, Code: lending.ErrStorage}, http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", &lending.Error{Kind: lending.ErrCapExceeded}), http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, toStatus(tc.err), tc.err.Error())
	}
}

func TestWriteEngineErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeEngineError(rec, &lending.Error{Kind: lending.ErrInternal, Code: lending.ErrStorage, Err: errors.New("disk /var/lib/x failed")})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[errorBody](t, rec)
	require.Equal(t, "internal", body.Kind)
	require.Equal(t, http.StatusText(http.StatusInternalServerError), body.Error)
	require.NotContains(t, rec.Body.String(), "/var/lib")

	rec = httptest.NewRecorder()
	writeEngineError(rec, errors.New("plain"))
	require.Equal(t, "internal", decode[errorBody](t, rec).Kind)
}

func TestJournalRetainsLatest(t *testing.T) {
	j := NewJournal(2, nil)
	for i := 0; i < 3; i++ {
		j.Emit(stubEvent{})
	}
	j.Emit(nil)
	entries := j.Since(0)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(2), entries[0].Seq)
	require.Equal(t, "stub", entries[1].Type)
	require.Len(t, j.Since(2), 1)
}

type stubEvent struct{}

func (stubEvent) EventType() string { return "stub" }
