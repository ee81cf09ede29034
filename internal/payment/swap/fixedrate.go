package swap

import "errors"

var ErrInvalidInput = errors.New("invalid_swap_input")

// FixedRateEngine is the deterministic stand-in for a real exchange route:
// output = (input - input*feePpm/1_000_000) * rate.
type FixedRateEngine struct {
	FeePpm int64
	Rate   int64
}

func NewFixedRateEngine(feePpm, rate int64) *FixedRateEngine {
	return &FixedRateEngine{FeePpm: feePpm, Rate: rate}
}

func (e *FixedRateEngine) Swap(input int64) (Result, error) {
	if input <= 0 {
		return Result{}, ErrInvalidInput
	}

	fee := input * e.FeePpm / 1_000_000
	output := (input - fee) * e.Rate

	return Result{
		InputAmount:  input,
		FeeAmount:    fee,
		OutputAmount: output,
	}, nil
}
