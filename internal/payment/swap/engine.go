// Package swap isolates the token conversion strategy so a real exchange
// route can replace the mock without touching the payment service contract.
package swap

type Result struct {
	InputAmount  int64
	FeeAmount    int64
	OutputAmount int64
}

type Engine interface {
	Swap(input int64) (Result, error)
}
