package session

import (
	"net/url"
	"strings"
)

// Digits strips everything but ASCII digits from a contact number.
func Digits(contact string) string {
	var b strings.Builder
	b.Grow(len(contact))
	for _, r := range contact {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize turns a local or international contact number into the
// "+<country><number>" form the channel expects. One leading trunk zero is
// dropped before the country code is prefixed.
func Normalize(contact string, countryCode string) string {
	digits := strings.TrimPrefix(Digits(contact), "0")
	return "+" + Digits(countryCode) + digits
}

// SendURL builds the channel URL that opens a chat with phone pre-filled
// with text.
func SendURL(baseURL, phone, text string) string {
	query := url.Values{}
	query.Set("phone", phone)
	query.Set("text", text)
	return strings.TrimRight(baseURL, "/") + "/send?" + query.Encode()
}
