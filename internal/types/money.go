// README: Common value objects shared across modules.
package types

// ID identifies an entity (request, offer, mechanic, client).
type ID string

// Money is an integer amount in the currency's minor unit (cents).
type Money struct {
	Amount   int64
	Currency string
}

func (m Money) Add(other Money) Money {
	cur := m.Currency
	if cur == "" {
		cur = other.Currency
	}
	return Money{Amount: m.Amount + other.Amount, Currency: cur}
}

func (m Money) Positive() bool {
	return m.Amount > 0
}
