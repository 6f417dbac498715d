package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/evand/conditional-markets/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Polymarket Gamma API. Only
// four-outcome markets whose outcomes are conjunctions of two binary events
// convert cleanly; anything else fails conversion.
type APIMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	ConditionID   string   `json:"condition_id"`
	Slug          string   `json:"slug"`
	ActiveFromAPI flexBool `json:"active"` // API may send bool or "true"/"false" string
	Closed        bool     `json:"closed"`
	Outcomes      string   `json:"outcomes"`       // JSON-encoded: e.g. "[\"Yes / Yes\",\"Yes / No\",...]"
	OutcomePrices string   `json:"outcomePrices"`  // JSON-encoded: e.g. "[\"0.3\",\"0.2\",...]"
	ClobTokenIDs  string   `json:"clob_token_ids"` // JSON-encoded token ID array
	Tokens        []Token  `json:"tokens"`
	Volume        string   `json:"volume"`
	EndDateISO    string   `json:"end_date_iso"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
	Description   string   `json:"description"`
}

// Token represents a token entry inside the Gamma API market response.
type Token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Winner  bool   `json:"winner"`
}

// ToJointMarket converts a Gamma APIMarket to a domain.JointMarket. Cell
// assignment prefers the outcome label (e.g. "Yes / No" means A holds, B does
// not); when a label does not parse, outcomes fall back to positional order
// matching domain.CellOrder.
func (m *APIMarket) ToJointMarket() (domain.JointMarket, error) {
	jm := domain.JointMarket{
		ID:       m.ID,
		Question: m.Question,
		Slug:     m.Slug,
	}

	labels, tokenIDs := m.outcomeColumns()
	if len(labels) != len(domain.CellOrder) || len(tokenIDs) != len(domain.CellOrder) {
		return domain.JointMarket{}, domain.ErrIncompleteMarket
	}

	seen := make(map[domain.Cell]bool, len(domain.CellOrder))
	for i := range domain.CellOrder {
		cell := cellForLabel(labels[i], i)
		if seen[cell] {
			return domain.JointMarket{}, domain.ErrIncompleteMarket
		}
		seen[cell] = true
		jm.Outcomes[i] = domain.OutcomeRef{
			Cell:      cell,
			OutcomeID: tokenIDs[i],
			TokenID:   tokenIDs[i],
			Label:     labels[i],
		}
	}

	if parts := splitQuestion(m.Question); parts[0] != "" {
		jm.EventA, jm.EventB = parts[0], parts[1]
	}

	if v, err := strconv.ParseFloat(m.Volume, 64); err == nil {
		jm.Volume = v
	}

	if m.Closed {
		jm.Status = domain.MarketStatusClosed
	} else if bool(m.ActiveFromAPI) {
		jm.Status = domain.MarketStatusActive
	} else {
		jm.Status = domain.MarketStatusSettled
	}

	if t, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
		jm.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, m.UpdatedAt); err == nil {
		jm.UpdatedAt = t
	}
	if m.EndDateISO != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
			jm.ClosedAt = &t
		}
	}

	return jm, nil
}

// outcomeColumns extracts the outcome labels and token IDs, preferring the
// Tokens array and falling back to the JSON-encoded string columns.
func (m *APIMarket) outcomeColumns() (labels, tokenIDs []string) {
	if len(m.Tokens) > 0 {
		for _, t := range m.Tokens {
			labels = append(labels, t.Outcome)
			tokenIDs = append(tokenIDs, t.TokenID)
		}
		return labels, tokenIDs
	}
	_ = json.Unmarshal([]byte(m.Outcomes), &labels)
	_ = json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs)
	return labels, tokenIDs
}

// cellForLabel parses labels of the form "Yes / No" (in several spellings)
// into a cell; idx is the positional fallback.
func cellForLabel(label string, idx int) domain.Cell {
	norm := strings.ToLower(label)
	for _, sep := range []string{"/", "&", ","} {
		if strings.Contains(norm, sep) {
			parts := strings.SplitN(norm, sep, 2)
			aYes, aOK := yesNo(strings.TrimSpace(parts[0]))
			bYes, bOK := yesNo(strings.TrimSpace(parts[1]))
			if aOK && bOK {
				return domain.CellFor(aYes, bYes)
			}
			break
		}
	}
	return domain.CellOrder[idx]
}

func yesNo(s string) (yes, ok bool) {
	switch s {
	case "yes", "y":
		return true, true
	case "no", "n":
		return false, true
	}
	return false, false
}

// splitQuestion derives event labels from questions like "Will A? / Will B?".
// Returns empty strings when the question has no recognizable split.
func splitQuestion(q string) [2]string {
	for _, sep := range []string{" / ", " & ", " and "} {
		if i := strings.Index(q, sep); i > 0 {
			return [2]string{strings.TrimSpace(q[:i]), strings.TrimSpace(q[i+len(sep):])}
		}
	}
	return [2]string{}
}

// --------------------------------------------------------------------------
// AMM API DTOs
// --------------------------------------------------------------------------

// APIPool is one outcome's reserve pair as reported by the AMM state endpoint.
// Reserves and price arrive as decimal strings.
type APIPool struct {
	TokenID    string `json:"token_id"`
	YesReserve string `json:"yes_reserve"`
	NoReserve  string `json:"no_reserve"`
	Price      string `json:"price"`
}

// APIPoolsResponse is the AMM state for a whole market.
type APIPoolsResponse struct {
	MarketID  string    `json:"market"`
	Pools     []APIPool `json:"pools"`
	Timestamp string    `json:"timestamp"`
}

// APIQuoteRequest asks the venue to evaluate a buy without executing it.
type APIQuoteRequest struct {
	MarketID string  `json:"market"`
	TokenID  string  `json:"token_id"`
	Side     string  `json:"side"` // "YES" or "NO"
	Amount   float64 `json:"amount"`
	DryRun   bool    `json:"dry_run"`
}

// APIQuoteResult is the venue's answer to a quote request.
type APIQuoteResult struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg,omitempty"`
	Shares   string `json:"shares"`
	AvgPrice string `json:"avg_price"`
}

// ToPool parses the reserve strings. Unparseable or non-positive reserves
// yield an invalid pool the caller must reject.
func (p *APIPool) ToPool() domain.Pool {
	var pool domain.Pool
	pool.YesReserve, _ = strconv.ParseFloat(p.YesReserve, 64)
	pool.NoReserve, _ = strconv.ParseFloat(p.NoReserve, 64)
	return pool
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// PoolUpdateMessage is a full reserve snapshot for a market delivered over
// the WebSocket "pool_update" channel.
type PoolUpdateMessage struct {
	Market    string    `json:"market"`
	Pools     []APIPool `json:"pools"`
	Timestamp string    `json:"timestamp"`
}

// PriceChangeMessage is an incremental per-token price update.
type PriceChangeMessage struct {
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Timestamp string `json:"timestamp"`
}

// WSCommand is the JSON payload sent to the WebSocket to subscribe/unsubscribe.
type WSCommand struct {
	Type    string   `json:"type"` // "subscribe" or "unsubscribe"
	Channel string   `json:"channel,omitempty"`
	Assets  []string `json:"assets_ids,omitempty"`
	Markets []string `json:"markets,omitempty"`
}

// PoolUpdate is the parsed form of a PoolUpdateMessage: reserves keyed by
// token ID. Mapping tokens onto cells needs market metadata and happens in
// the service layer.
type PoolUpdate struct {
	MarketID  string
	Reserves  map[string]domain.Pool
	Timestamp time.Time
}

// PriceUpdate is the parsed form of a PriceChangeMessage.
type PriceUpdate struct {
	MarketID  string
	TokenID   string
	Price     float64
	Timestamp time.Time
}

func poolUpdateToDomain(m *PoolUpdateMessage) PoolUpdate {
	u := PoolUpdate{
		MarketID: m.Market,
		Reserves: make(map[string]domain.Pool, len(m.Pools)),
	}
	for i := range m.Pools {
		u.Reserves[m.Pools[i].TokenID] = m.Pools[i].ToPool()
	}
	u.Timestamp = parseWSTimestamp(m.Timestamp)
	return u
}

func priceChangeToDomain(m *PriceChangeMessage) PriceUpdate {
	u := PriceUpdate{
		MarketID: m.Market,
		TokenID:  m.AssetID,
	}
	u.Price, _ = strconv.ParseFloat(m.Price, 64)
	u.Timestamp = parseWSTimestamp(m.Timestamp)
	return u
}

func parseWSTimestamp(s string) time.Time {
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(ts, 0)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now()
}
