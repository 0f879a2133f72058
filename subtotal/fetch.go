package subtotal

import (
	"context"
	"fmt"

	"github.com/warp/ledger-engine/exchange"
	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
)

// Source is anything legs can be read from: a store, an overlay.
type Source interface {
	SelectDetails(ctx context.Context, q ledger.DetailQuery) ([]ledger.Balance, error)
}

// Fetch reads the legs selected by q. When spec carries an EquivalentDate
// every leg is converted through rates first; an empty EquivalentCurrency
// means the table's base.
func Fetch(ctx context.Context, src Source, q ledger.DetailQuery, spec Spec, rates *exchange.Table) ([]ledger.Balance, error) {
	records, err := src.SelectDetails(ctx, q)
	if err != nil {
		return nil, err
	}
	if spec.EquivalentDate == nil {
		return records, nil
	}
	if rates == nil {
		return nil, fmt.Errorf("%w: no rate table configured", generic.ErrNoExchangeRate)
	}
	to := spec.EquivalentCurrency
	if to == "" {
		to = rates.Base
	}
	return rates.Equalize(records, to, *spec.EquivalentDate)
}

// Query fetches through Fetch and builds the result tree.
func Query(ctx context.Context, src Source, q ledger.DetailQuery, spec Spec, rates *exchange.Table) (*RootResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	records, err := Fetch(ctx, src, q, spec, rates)
	if err != nil {
		return nil, err
	}
	return Build(spec, records)
}
