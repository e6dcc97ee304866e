package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ExecutionVenue is the exchange the live executor trades against.
type ExecutionVenue interface {
	BestBid(ctx context.Context, symbol string) (decimal.Decimal, error)
	BestAsk(ctx context.Context, symbol string) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, symbol string, side Side, price, amount decimal.Decimal) (FillConfirmation, error)
}

// ScoringService returns the model's confidence in [0,1] for a feature
// tuple. Arity is the input width the model was built for.
type ScoringService interface {
	Score(ctx context.Context, features []float64) (float64, error)
	Arity() int
}
