package export

import (
	"strconv"
	"time"

	"github.com/rovshanmuradov/fundly/internal/curve"
	"github.com/rovshanmuradov/fundly/internal/events"
	"github.com/shopspring/decimal"
)

// Trade is one executed curve trade as written to journals and exports.
type Trade struct {
	ID                string          `json:"id"`
	Timestamp         time.Time       `json:"timestamp"`
	Actor             string          `json:"actor"`
	Mint              string          `json:"mint"`
	Side              string          `json:"side"`
	SolAmount         uint64          `json:"sol_amount"`
	TokenAmount       uint64          `json:"token_amount"`
	Fee               uint64          `json:"fee"`
	Price             decimal.Decimal `json:"price"`
	RealSolReserves   uint64          `json:"real_sol_reserves"`
	RealTokenReserves uint64          `json:"real_token_reserves"`
}

// FromEvent flattens a trade event. Price is the SOL per whole token the
// trade actually settled at.
func FromEvent(ev events.TradeExecutedEvent) Trade {
	t := Trade{
		ID:                ev.ID(),
		Timestamp:         ev.Timestamp(),
		Actor:             ev.Actor.String(),
		Mint:              ev.Mint.String(),
		Side:              string(ev.Side),
		SolAmount:         ev.SolAmount,
		TokenAmount:       ev.TokenAmount,
		Fee:               ev.Fee,
		RealSolReserves:   ev.RealSolReserves,
		RealTokenReserves: ev.RealTokenReserves,
	}
	if ev.TokenAmount > 0 {
		t.Price = curve.Price(ev.SolAmount, ev.TokenAmount)
	}
	return t
}

// ToCSV converts the trade to a CSV record
func (t Trade) ToCSV() []string {
	return []string{
		t.ID,
		t.Timestamp.Format(time.RFC3339Nano),
		t.Actor,
		t.Mint,
		t.Side,
		strconv.FormatUint(t.SolAmount, 10),
		strconv.FormatUint(t.TokenAmount, 10),
		strconv.FormatUint(t.Fee, 10),
		t.Price.String(),
		strconv.FormatUint(t.RealSolReserves, 10),
		strconv.FormatUint(t.RealTokenReserves, 10),
	}
}

// CSVHeaders returns the header row for trade CSV files
func CSVHeaders() []string {
	return []string{
		"id",
		"timestamp",
		"actor",
		"mint",
		"side",
		"sol_amount",
		"token_amount",
		"fee",
		"price",
		"real_sol_reserves",
		"real_token_reserves",
	}
}
