package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
)

func TestDocRoundTrip(t *testing.T) {
	v := ledger.Voucher{
		ID:     "v1",
		Date:   generic.NewDate(2024, 3, 5).Ptr(),
		Remark: "lunch",
		Details: []ledger.Detail{
			{User: "alice", Currency: "USD", Title: 6602, Fund: ledger.Amount("12.50")},
			{User: "alice", Currency: "USD", Title: 1001, Remark: "card"},
		},
	}

	doc, err := toDoc(v)
	require.NoError(t, err)
	assert.Equal(t, "ordinary", doc.Type)
	require.NotNil(t, doc.Date)
	assert.Equal(t, "2024-03-05", *doc.Date)
	assert.Nil(t, doc.Details[1].Fund)

	back, err := fromDoc(doc)
	require.NoError(t, err)
	assert.Equal(t, ledger.VoucherOrdinary, back.Type)
	assert.True(t, v.Date.Equal(*back.Date))
	assert.True(t, back.Details[0].Fund.Equal(*ledger.Amount("12.5")))
	assert.Nil(t, back.Details[1].Fund)
	assert.Equal(t, "card", back.Details[1].Remark)
}

func TestDocRoundTrip_Undated(t *testing.T) {
	doc, err := toDoc(ledger.Voucher{ID: "v2"})
	require.NoError(t, err)
	assert.Nil(t, doc.Date)

	back, err := fromDoc(doc)
	require.NoError(t, err)
	assert.Nil(t, back.Date)
	assert.Empty(t, back.Details)
}
