package payment

// FallbackMessage is shown whenever a provider code is absent or unknown.
const FallbackMessage = "Payment processing failed. Please try again."

// nmiMessages maps legacy gateway response_code values to user-facing text.
var nmiMessages = map[string]string{
	"100": "Transaction approved.",
	"200": "Transaction was declined by the processor.",
	"201": "Do not honor. Please contact your card issuer.",
	"202": "Insufficient funds.",
	"203": "Over limit.",
	"204": "Transaction not allowed.",
	"220": "Incorrect payment information.",
	"221": "No such card issuer.",
	"222": "No card number on file with issuer.",
	"223": "Card has expired.",
	"224": "Invalid expiration date.",
	"225": "Invalid card security code.",
	"226": "Invalid PIN.",
	"240": "Call issuer for further information.",
	"250": "Card declined. Please contact your card issuer.",
	"251": "Card declined. Please contact your card issuer.",
	"252": "Card declined. Please contact your card issuer.",
	"253": "Card declined. Please contact your card issuer.",
	"260": "Card declined. Please use a different card.",
	"261": "Card declined. Recurring billing stopped by issuer.",
	"262": "Card declined. Recurring billing stopped by issuer.",
	"263": "Card declined. Please update cardholder data.",
	"264": "Card declined. Please retry in a few days.",
	"300": "Transaction was rejected by the gateway.",
	"400": "Transaction error returned by the processor.",
	"410": "Invalid merchant configuration.",
	"411": "Merchant account is inactive.",
	"420": "Communication error. Please try again.",
	"421": "Communication error with the card issuer. Please try again.",
	"430": "Duplicate transaction.",
	"440": "Processor format error.",
	"441": "Invalid transaction information.",
	"460": "Processor feature not available.",
	"461": "Unsupported card type.",
}

// nmiNotRetryable are error codes caused by configuration or request content.
var nmiNotRetryable = map[string]bool{
	"300": true, "410": true, "411": true, "430": true, "440": true, "441": true, "460": true, "461": true,
}

func nmiMessage(code string) string {
	if m, ok := nmiMessages[code]; ok {
		return m
	}
	return FallbackMessage
}

// stripeMessages maps decline and error codes of the tokenized provider to the
// same user-facing texts.
var stripeMessages = map[string]string{
	"card_declined":           "Transaction was declined by the processor.",
	"generic_decline":         "Transaction was declined by the processor.",
	"do_not_honor":            "Do not honor. Please contact your card issuer.",
	"insufficient_funds":      "Insufficient funds.",
	"card_velocity_exceeded":  "Over limit.",
	"transaction_not_allowed": "Transaction not allowed.",
	"incorrect_number":        "Incorrect payment information.",
	"invalid_number":          "Incorrect payment information.",
	"expired_card":            "Card has expired.",
	"invalid_expiry_month":    "Invalid expiration date.",
	"invalid_expiry_year":     "Invalid expiration date.",
	"incorrect_cvc":           "Invalid card security code.",
	"invalid_cvc":             "Invalid card security code.",
	"call_issuer":             "Call issuer for further information.",
	"lost_card":               "Card declined. Please contact your card issuer.",
	"stolen_card":             "Card declined. Please contact your card issuer.",
	"pickup_card":             "Card declined. Please contact your card issuer.",
	"fraudulent":              "Card declined. Please contact your card issuer.",
	"processing_error":        "Transaction error returned by the processor.",
	"authentication_required": "Card declined. Please use a different card.",
	"duplicate_transaction":   "Duplicate transaction.",
}

func stripeMessage(code string) string {
	if m, ok := stripeMessages[code]; ok {
		return m
	}
	return FallbackMessage
}
