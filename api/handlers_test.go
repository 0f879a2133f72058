/*
handlers_test.go - HTTP-level tests for the API

Tests for:
- Voucher CRUD and normalization on save
- Query trees decoded from JSON (voucher queries, leg filters)
- Dangerous bulk deletes and the force flag
- Subtotal trees and text reports
- Batch atomicity and dry runs
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/exchange"
	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testServer struct {
	store  *memory.Memory
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	rates := exchange.NewTable("CNY")
	rates.Add("USD", generic.NewDate(2024, 1, 1), decimal.NewFromInt(7))

	h := NewHandler(ledger.New(store), rates, nil)
	return &testServer{store: store, router: NewRouter(h, RouterOptions{})}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(UserHeader, "alice")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) seed(vs ...ledger.Voucher) {
	s.store.Seed(vs...)
}

func day(d int) *generic.Date {
	return generic.NewDate(2024, 3, d).Ptr()
}

func seedVouchers() []ledger.Voucher {
	return []ledger.Voucher{
		{ID: "a", Date: day(1), Details: []ledger.Detail{
			{User: "alice", Currency: "CNY", Title: 6602, Fund: ledger.Amount("100")},
			{User: "alice", Currency: "CNY", Title: 1001, Fund: ledger.Amount("-100")},
		}},
		{ID: "b", Date: day(3), Details: []ledger.Detail{
			{User: "alice", Currency: "USD", Title: 6602, Fund: ledger.Amount("10")},
			{User: "alice", Currency: "USD", Title: 1002, Fund: ledger.Amount("-10")},
		}},
		{ID: "c", Date: day(20), Details: []ledger.Detail{
			{User: "bob", Currency: "CNY", Title: 6001, Fund: ledger.Amount("-50")},
			{User: "bob", Currency: "CNY", Title: 1002, Fund: ledger.Amount("50")},
		}},
	}
}

func voucherIDs(vs []ledger.Voucher) []string {
	out := []string{}
	for _, v := range vs {
		out = append(out, v.ID)
	}
	return out
}

// =============================================================================
// VOUCHERS
// =============================================================================

func TestCreateVoucher_NormalizesAndStores(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: a voucher with one leg missing its amount
	body := `{"date":"2024-03-05","details":[{"title":6602,"fund":"42"},{"title":1001}]}`

	// WHEN: posting it
	rec := s.do(t, http.MethodPost, "/api/vouchers", body)

	// THEN: it is completed, attributed to the acting user and stored
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	v := decodeBody[ledger.Voucher](t, rec)
	require.NotEmpty(t, v.ID)
	require.Len(t, v.Details, 2)
	assert.True(t, v.Details[1].Fund.Equal(decimal.NewFromInt(-42)))
	assert.Equal(t, "alice", v.Details[1].User)
	assert.Equal(t, "CNY", v.Details[1].Currency)
	assert.Equal(t, 1, s.store.Len())
}

func TestCreateVoucher_AmbiguousIs400(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/vouchers", `{"details":[{"title":6602},{"title":1001}]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ambiguous_normalization", decodeBody[ErrorResponse](t, rec).Code)
}

func TestCreateVoucher_InvalidBody(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/vouchers", `{"details":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", decodeBody[ErrorResponse](t, rec).Code)
}

func TestGetPutDeleteVoucher(t *testing.T) {
	s := newTestServer(t)
	s.seed(seedVouchers()...)

	rec := s.do(t, http.MethodGet, "/api/vouchers/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a", decodeBody[ledger.Voucher](t, rec).ID)

	rec = s.do(t, http.MethodPut, "/api/vouchers/a",
		`{"date":"2024-03-02","remark":"fixed","details":[{"title":6602,"fund":"7"},{"title":1001,"fund":"-7"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, err := s.store.SelectVoucher(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "fixed", got.Remark)

	rec = s.do(t, http.MethodDelete, "/api/vouchers/a", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/vouchers/a", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/vouchers/a", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestQueryVouchers_Tree(t *testing.T) {
	s := newTestServer(t)
	s.seed(seedVouchers()...)

	// vouchers with an expense leg, minus the USD ones
	body := `{"query":{"op":"subtract","args":[
		{"atom":{"details":{"atom":{"title":6602}}}},
		{"atom":{"details":{"atom":{"currency":"USD"}}}}
	]}}`
	rec := s.do(t, http.MethodPost, "/api/vouchers/query", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"a"}, voucherIDs(decodeBody[[]ledger.Voucher](t, rec)))
}

func TestQueryVouchers_NoQueryReturnsAllInOrder(t *testing.T) {
	s := newTestServer(t)
	s.seed(seedVouchers()...)

	rec := s.do(t, http.MethodPost, "/api/vouchers/query", `{}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a", "b", "c"}, voucherIDs(decodeBody[[]ledger.Voucher](t, rec)))
}

func TestQueryVouchers_MalformedTreeIs400(t *testing.T) {
	s := newTestServer(t)

	cases := map[string]string{
		"subtract arity": `{"query":{"op":"subtract","args":[{"atom":{}}]}}`,
		"empty union":    `{"query":{"op":"union"}}`,
		"unknown op":     `{"query":{"op":"xor","args":[{"atom":{}}]}}`,
		"leaf with args": `{"query":{"atom":{},"args":[{"atom":{}}]}}`,
		"empty leaf":     `{"query":{"op":"atom"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/vouchers/query", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestQueryDetails(t *testing.T) {
	s := newTestServer(t)
	s.seed(seedVouchers()...)

	body := `{"details":{"atom":{"dir":-1,"user":"alice"}}}`
	rec := s.do(t, http.MethodPost, "/api/details/query", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	legs := decodeBody[[]ledger.Balance](t, rec)
	require.Len(t, legs, 2)
	assert.Equal(t, 1001, legs[0].Title)
	assert.Equal(t, 1002, legs[1].Title)
}

// =============================================================================
// BULK DELETE
// =============================================================================

func TestDeleteVouchers_DangerousNeedsForce(t *testing.T) {
	s := newTestServer(t)
	s.seed(seedVouchers()...)

	rec := s.do(t, http.MethodPost, "/api/vouchers/delete", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 3, s.store.Len())

	rec = s.do(t, http.MethodPost, "/api/vouchers/delete", `{"force":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), decodeBody[DeleteVouchersResponse](t, rec).Deleted)
	assert.Equal(t, 0, s.store.Len())
}

func TestDeleteVouchers_NarrowRange(t *testing.T) {
	s := newTestServer(t)
	s.seed(seedVouchers()...)

	body := `{"query":{"atom":{"range":{"start":"2024-03-01","end":"2024-03-05"}}}}`
	rec := s.do(t, http.MethodPost, "/api/vouchers/delete", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(2), decodeBody[DeleteVouchersResponse](t, rec).Deleted)
	assert.Equal(t, 1, s.store.Len())
}

// =============================================================================
// SUBTOTAL
// =============================================================================

func TestSubtotal_Tree(t *testing.T) {
	s := newTestServer(t)
	s.seed(seedVouchers()...)

	body := `{"query":{"details":{"atom":{"title":6602}}},"spec":{"levels":["currency"]}}`
	rec := s.do(t, http.MethodPost, "/api/subtotal", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[SubtotalResponse](t, rec)
	require.NotNil(t, resp.Root)
	assert.Equal(t, "root", resp.Root.Level)
	require.Len(t, resp.Root.Items, 2)
	assert.Equal(t, "CNY", resp.Root.Items[0].Key)
	assert.True(t, resp.Root.Items[0].Fund.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "USD", resp.Root.Items[1].Key)
}

func TestSubtotal_EquivalentCurrency(t *testing.T) {
	s := newTestServer(t)
	s.seed(seedVouchers()...)

	body := `{"query":{"details":{"atom":{"title":6602}}},"spec":{"equivalentDate":"2024-03-31"}}`
	rec := s.do(t, http.MethodPost, "/api/subtotal", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[SubtotalResponse](t, rec)
	assert.True(t, resp.Root.Fund.Equal(decimal.NewFromInt(170)), resp.Root.Fund.String())
}

func TestSubtotal_TerseText(t *testing.T) {
	s := newTestServer(t)
	s.seed(seedVouchers()...)

	body := `{"query":{"details":{"atom":{"title":6602}}},"spec":{"levels":["title"]},"format":"terse"}`
	rec := s.do(t, http.MethodPost, "/api/subtotal", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	text := decodeBody[SubtotalResponse](t, rec).Text
	assert.True(t, strings.HasPrefix(text, "/\t"), text)
	assert.Contains(t, text, "6602")
}

func TestSubtotal_BadSpecIs400(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/subtotal", `{"spec":{"levels":["galaxy"]}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/subtotal", `{"spec":{"levels":["day"],"aggr":"changed"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// NORMALIZE & BATCH
// =============================================================================

func TestNormalize_DoesNotStore(t *testing.T) {
	s := newTestServer(t)

	body := `{"details":[{"title":6602,"currency":"USD","fund":"10"},{"title":1001,"currency":"CNY","fund":"-70"}]}`
	rec := s.do(t, http.MethodPost, "/api/normalize", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeBody[ledger.Voucher](t, rec)
	assert.Len(t, v.Details, 4, "one currency leg per currency is added")
	assert.Equal(t, 0, s.store.Len())
}

func TestBatch_CommitsAllOperations(t *testing.T) {
	s := newTestServer(t)
	s.seed(seedVouchers()...)

	body := `{"operations":[
		{"op":"save","voucher":{"id":"d","date":"2024-03-04","details":[{"title":6602,"fund":"5"},{"title":1001}]}},
		{"op":"remove","id":"a"}
	],"preview":{"query":{"details":{"atom":{"title":6602,"currency":"CNY"}}},"spec":{}}}`
	rec := s.do(t, http.MethodPost, "/api/batch", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[BatchResponse](t, rec)
	assert.True(t, resp.Committed)
	require.Len(t, resp.Results, 2)
	require.NotNil(t, resp.Preview)
	assert.True(t, resp.Preview.Root.Fund.Equal(decimal.NewFromInt(5)), "preview sees the batch, not the store")

	vs, err := s.store.SelectVouchers(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d", "c"}, voucherIDs(vs))
}

func TestBatch_FailureLeavesStoreUntouched(t *testing.T) {
	s := newTestServer(t)
	s.seed(seedVouchers()...)

	body := `{"operations":[
		{"op":"remove","id":"a"},
		{"op":"remove","id":"missing"}
	]}`
	rec := s.do(t, http.MethodPost, "/api/batch", body)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 3, s.store.Len())
}

func TestBatch_DryRun(t *testing.T) {
	s := newTestServer(t)
	s.seed(seedVouchers()...)

	body := `{"dryRun":true,"operations":[{"op":"removeWhere","force":true}]}`
	rec := s.do(t, http.MethodPost, "/api/batch", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[BatchResponse](t, rec)
	assert.False(t, resp.Committed)
	assert.Equal(t, int64(3), resp.Results[0].Deleted)
	assert.Equal(t, 3, s.store.Len())
}

func TestBatch_UnknownOperation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/batch", `{"operations":[{"op":"explode"}]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}
