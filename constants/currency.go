package constants

// DefaultCurrencyCodes is the default accepted ISO 4217 set. Override via
// the CURRENCY_CODES env variable when invoices arrive in other currencies.
var DefaultCurrencyCodes = []string{
	"USD", "EUR", "GBP", "CAD", "AUD", "CHF", "JPY", "CNY", "INR", "SEK",
	"NOK", "DKK", "PLN", "NZD", "SGD", "HKD", "MXN", "BRL", "ZAR", "AED",
}
