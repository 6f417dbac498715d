package polymarket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evand/conditional-markets/internal/domain"
)

func TestFlexBool(t *testing.T) {
	var v struct {
		Active flexBool `json:"active"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"active": true}`), &v))
	assert.True(t, bool(v.Active))

	require.NoError(t, json.Unmarshal([]byte(`{"active": "false"}`), &v))
	assert.False(t, bool(v.Active))

	require.NoError(t, json.Unmarshal([]byte(`{"active": "TRUE"}`), &v))
	assert.True(t, bool(v.Active))
}

func TestCellForLabel(t *testing.T) {
	assert.Equal(t, domain.CellYesYes, cellForLabel("Yes / Yes", 3))
	assert.Equal(t, domain.CellYesNo, cellForLabel("Yes / No", 3))
	assert.Equal(t, domain.CellNoYes, cellForLabel("no & yes", 3))
	assert.Equal(t, domain.CellNoNo, cellForLabel("No, No", 0))

	// Unparseable labels fall back to position.
	assert.Equal(t, domain.CellNoYes, cellForLabel("Both happen", 2))
	assert.Equal(t, domain.CellYesYes, cellForLabel("", 0))
}

func TestToJointMarket(t *testing.T) {
	m := APIMarket{
		ID:       "0xabc",
		Question: "Will rates fall? / Will stocks rise?",
		Slug:     "rates-stocks",
		Closed:   false,
		Outcomes: `["Yes / Yes","Yes / No","No / Yes","No / No"]`,
		ClobTokenIDs: `["t1","t2","t3","t4"]`,
		Volume:   "12500.5",
	}
	m.ActiveFromAPI = true

	jm, err := m.ToJointMarket()
	require.NoError(t, err)

	assert.Equal(t, "0xabc", jm.ID)
	assert.Equal(t, domain.MarketStatusActive, jm.Status)
	assert.Equal(t, "Will rates fall?", jm.EventA)
	assert.Equal(t, "Will stocks rise?", jm.EventB)
	assert.InDelta(t, 12500.5, jm.Volume, 1e-9)
	assert.True(t, jm.Complete())

	ref, ok := jm.Outcome(domain.CellNoYes)
	require.True(t, ok)
	assert.Equal(t, "t3", ref.TokenID)
}

func TestToJointMarket_TokensPreferred(t *testing.T) {
	m := APIMarket{
		ID:       "0xdef",
		Question: "q",
		Tokens: []Token{
			{TokenID: "a", Outcome: "Yes / Yes"},
			{TokenID: "b", Outcome: "Yes / No"},
			{TokenID: "c", Outcome: "No / Yes"},
			{TokenID: "d", Outcome: "No / No"},
		},
	}

	jm, err := m.ToJointMarket()
	require.NoError(t, err)

	ref, ok := jm.Outcome(domain.CellNoNo)
	require.True(t, ok)
	assert.Equal(t, "d", ref.TokenID)
}

func TestToJointMarket_WrongOutcomeCount(t *testing.T) {
	m := APIMarket{
		ID:           "0xbin",
		Question:     "binary market",
		Outcomes:     `["Yes","No"]`,
		ClobTokenIDs: `["t1","t2"]`,
	}

	_, err := m.ToJointMarket()
	assert.ErrorIs(t, err, domain.ErrIncompleteMarket)
}

func TestToJointMarket_DuplicateCells(t *testing.T) {
	m := APIMarket{
		ID:           "0xdup",
		Question:     "q",
		Outcomes:     `["Yes / Yes","Yes / Yes","No / Yes","No / No"]`,
		ClobTokenIDs: `["t1","t2","t3","t4"]`,
	}

	_, err := m.ToJointMarket()
	assert.ErrorIs(t, err, domain.ErrIncompleteMarket)
}

func TestAPIPoolToPool(t *testing.T) {
	p := APIPool{TokenID: "t1", YesReserve: "300", NoReserve: "100"}
	pool := p.ToPool()
	assert.Equal(t, domain.Pool{YesReserve: 300, NoReserve: 100}, pool)
	assert.True(t, pool.Valid())

	bad := APIPool{TokenID: "t2", YesReserve: "garbage", NoReserve: "100"}
	assert.False(t, bad.ToPool().Valid())
}

func TestPoolUpdateToDomain(t *testing.T) {
	msg := PoolUpdateMessage{
		Market: "0xabc",
		Pools: []APIPool{
			{TokenID: "t1", YesReserve: "300", NoReserve: "100"},
			{TokenID: "t2", YesReserve: "150", NoReserve: "100"},
		},
		Timestamp: "1756500000",
	}

	u := poolUpdateToDomain(&msg)
	assert.Equal(t, "0xabc", u.MarketID)
	require.Len(t, u.Reserves, 2)
	assert.Equal(t, 150.0, u.Reserves["t2"].YesReserve)
	assert.Equal(t, int64(1756500000), u.Timestamp.Unix())
}
