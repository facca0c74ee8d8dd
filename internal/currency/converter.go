package currency

import "fmt"

// ratesPerUSD maps currency codes to the number of local currency units per 1 USD.
// These are approximate 2024 rates for the corridors we charge in.
var ratesPerUSD = map[string]float64{
	"USD": 1.0,
	"KES": 129.5,  // Kenyan Shilling
	"NGN": 1580.0, // Nigerian Naira
	"ZAR": 18.6,   // South African Rand
}

// ConvertCents converts an amount in minor units between two supported
// currencies, rounding to the nearest minor unit.
func ConvertCents(amountCents int64, from, to string) (int64, error) {
	if from == to {
		return amountCents, nil
	}
	fromRate, ok := ratesPerUSD[from]
	if !ok {
		return 0, fmt.Errorf("unsupported currency: %s", from)
	}
	toRate, ok := ratesPerUSD[to]
	if !ok {
		return 0, fmt.Errorf("unsupported currency: %s", to)
	}
	converted := float64(amountCents) / fromRate * toRate
	return int64(converted + 0.5), nil
}

// Rate returns the exchange rate for a given currency (units per 1 USD).
func Rate(currency string) (float64, error) {
	rate, ok := ratesPerUSD[currency]
	if !ok {
		return 0, fmt.Errorf("unsupported currency: %s", currency)
	}
	return rate, nil
}

// Supported reports whether we carry a rate for the currency.
func Supported(currency string) bool {
	_, ok := ratesPerUSD[currency]
	return ok
}
