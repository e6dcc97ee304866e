package binance

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// DepthMessage is a partial book as served by the REST depth endpoint and
// the <symbol>@depth<N> stream. Levels are [price, qty] string pairs.
type DepthMessage struct {
	LastUpdateID int64             `json:"lastUpdateId"`
	Bids         []domain.RawLevel `json:"bids"`
	Asks         []domain.RawLevel `json:"asks"`
}

// Raw converts the message into a raw snapshot stamped with ts. The depth
// payload carries no event time.
func (m DepthMessage) Raw(symbol, ts string) domain.RawSnapshot {
	bids, asks := m.Bids, m.Asks
	if bids == nil {
		bids = []domain.RawLevel{}
	}
	if asks == nil {
		asks = []domain.RawLevel{}
	}
	return domain.RawSnapshot{Symbol: symbol, Timestamp: ts, Bids: &bids, Asks: &asks}
}

// orderResponse is the RESULT response of POST /api/v3/order.
type orderResponse struct {
	Symbol              string          `json:"symbol"`
	OrderID             int64           `json:"orderId"`
	Price               decimal.Decimal `json:"price"`
	ExecutedQty         decimal.Decimal `json:"executedQty"`
	CummulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`
	Status              string          `json:"status"`
	Side                string          `json:"side"`
}

// fill converts the response. The fill price is the average over the
// executed quantity, falling back to the limit price when nothing filled.
func (r orderResponse) fill() domain.FillConfirmation {
	price := r.Price
	if r.ExecutedQty.IsPositive() {
		price = r.CummulativeQuoteQty.Div(r.ExecutedQty)
	}
	side := domain.SideBuy
	if r.Side == "SELL" {
		side = domain.SideSell
	}
	return domain.FillConfirmation{
		OrderID:      strconv.FormatInt(r.OrderID, 10),
		Symbol:       r.Symbol,
		Side:         side,
		Price:        price,
		FilledAmount: r.ExecutedQty,
		Status:       r.Status,
	}
}

// apiError is the error body returned with non-2xx responses.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func decodeAPIError(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil || e.Msg == "" {
		return string(body)
	}
	return strconv.Itoa(e.Code) + " " + e.Msg
}
