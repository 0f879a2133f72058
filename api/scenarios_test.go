package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/ledger"
)

func TestListScenarios(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/scenarios/", "")

	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]ScenarioDTO](t, rec)
	assert.Len(t, list, len(scenarios))
}

func TestLoadScenario_EveryScenarioBalances(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			s := newTestServer(t)
			s.seed(seedVouchers()...)

			// WHEN: loading the scenario over existing data
			rec := s.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"`+sc.ID+`"}`)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			// THEN: the old vouchers are gone and the new ones balance
			// per user and currency
			resp := decodeBody[LoadScenarioResponse](t, rec)
			assert.Equal(t, resp.Vouchers, s.store.Len())

			legs, err := s.store.SelectDetails(context.Background(), ledger.DetailQuery{})
			require.NoError(t, err)
			nets := map[[2]string]decimal.Decimal{}
			for _, b := range legs {
				k := [2]string{b.User, b.Currency}
				nets[k] = nets[k].Add(b.Fund)
			}
			for k, net := range nets {
				assert.True(t, net.IsZero(), "%v nets %s", k, net)
			}
		})
	}
}

func TestLoadScenario_Unknown(t *testing.T) {
	s := newTestServer(t)
	s.seed(seedVouchers()...)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"moon-base"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 3, s.store.Len())
}
