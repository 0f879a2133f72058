/*
scenarios.go - Demo data sets for testing and demonstrations

PURPOSE:
	Provides pre-built voucher sets that populate the ledger with
	realistic data. Each one exercises a different part of the engine.

AVAILABLE SCENARIOS:
	household:   single user, single currency, a month of cash flow
	shared-trip: several users paying for each other (user settlement legs)
	travel-fx:   spending abroad from a home-currency account (currency legs)

HOW SCENARIOS WORK:
 1. Open an overlay on the store
 2. Delete every voucher (forced, the query is dangerous on purpose)
 3. Save the scenario's vouchers through the ledger, so they get normalized
 4. Commit; any failure leaves the store untouched

USAGE VIA API:
	POST /api/scenarios/load
	{"scenario_id": "shared-trip"}

NOTE:
	Scenarios wipe the ledger. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: request handling helpers
  - virtual/overlay.go: the all-or-nothing scope
*/
package api

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/virtual"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type LoadScenarioResponse struct {
	Scenario string `json:"scenario"`
	Vouchers int    `json:"vouchers"`
}

type scenario struct {
	ScenarioDTO
	user  string
	build func(today generic.Date) []ledger.Voucher
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "household",
			Name:        "Household",
			Description: "Salary, rent and groceries for one user in the base currency",
		},
		user:  "alice",
		build: householdVouchers,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "shared-trip",
			Name:        "Shared Trip",
			Description: "Friends paying for each other; settlement legs between users",
		},
		user:  "alice",
		build: sharedTripVouchers,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "travel-fx",
			Name:        "Travel FX",
			Description: "Foreign-currency expenses paid from a home-currency card",
		},
		user:  "alice",
		build: travelFXVouchers,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, out)
}

// LoadScenario replaces the ledger's content with a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", "unknown_scenario", nil)
		return
	}

	n, err := h.loadScenario(r.Context(), s)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LoadScenarioResponse{Scenario: s.ID, Vouchers: n})
}

func (h *Handler) loadScenario(ctx context.Context, s scenario) (int, error) {
	rc := ledger.NewRequestContext(s.user)
	vs := s.build(rc.Today)

	err := virtual.Run(ctx, h.Ledger.Store, func(o *virtual.Overlay) error {
		l := h.Ledger.WithStore(o)
		if _, err := l.RemoveWhere(ctx, nil, true); err != nil {
			return err
		}
		for _, v := range vs {
			if _, err := l.Save(ctx, v, rc); err != nil {
				return err
			}
		}
		return nil
	}, virtual.WithLogger(h.Logger))
	return len(vs), err
}

// =============================================================================
// SCENARIO DATA
// =============================================================================

func fund(s string) *decimal.Decimal { return ledger.Amount(s) }

func householdVouchers(today generic.Date) []ledger.Voucher {
	start := today.StartOfMonth()
	return []ledger.Voucher{
		{Date: start.Ptr(), Remark: "salary", Details: []ledger.Detail{
			{Title: 1002, Content: "bank", Fund: fund("12000")},
			{Title: 6001, Content: "salary"},
		}},
		{Date: start.AddDays(1).Ptr(), Remark: "rent", Details: []ledger.Detail{
			{Title: 6602, Content: "rent", Fund: fund("4500")},
			{Title: 1002, Content: "bank"},
		}},
		{Date: start.AddDays(3).Ptr(), Details: []ledger.Detail{
			{Title: 6602, Content: "groceries", Fund: fund("320.50")},
			{Title: 1001, Content: "cash"},
		}},
		{Remark: "pending refund", Details: []ledger.Detail{
			{Title: 1221, Content: "shop", Fund: fund("89")},
			{Title: 6602, Content: "groceries"},
		}},
	}
}

func sharedTripVouchers(today generic.Date) []ledger.Voucher {
	day := today.AddDays(-2)
	return []ledger.Voucher{
		// alice pays the hotel for bob
		{Date: day.Ptr(), Remark: "hotel", Details: []ledger.Detail{
			{User: "bob", Title: 6602, Content: "hotel", Fund: fund("600")},
			{User: "alice", Title: 1002, Content: "bank", Fund: fund("-600")},
		}},
		// carol pays dinner for alice
		{Date: day.AddDays(1).Ptr(), Remark: "dinner", Details: []ledger.Detail{
			{User: "alice", Title: 6602, Content: "dinner", Fund: fund("180")},
			{User: "carol", Title: 1001, Content: "cash", Fund: fund("-180")},
		}},
	}
}

func travelFXVouchers(today generic.Date) []ledger.Voucher {
	day := today.AddDays(-5)
	return []ledger.Voucher{
		{Date: day.Ptr(), Remark: "museum", Details: []ledger.Detail{
			{Currency: "EUR", Title: 6602, Content: "tickets", Fund: fund("40")},
			{Currency: "CNY", Title: 2241, Content: "credit card", Fund: fund("-312")},
		}},
		{Date: day.AddDays(1).Ptr(), Remark: "taxi", Details: []ledger.Detail{
			{Currency: "EUR", Title: 6602, Content: "taxi", Fund: fund("25")},
			{Currency: "EUR", Title: 1001, Content: "cash"},
		}},
	}
}
