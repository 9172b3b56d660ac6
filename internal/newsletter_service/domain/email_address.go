package domain

import (
	"fmt"
	"strings"
)

// EmailAddress is a syntactically acceptable recipient address.
type EmailAddress struct {
	value string
}

// ParseEmailAddress checks the minimal shape we rely on before handing an
// address to the transport. Stored recipients are re-checked here at send
// time: subscription-time validation may have been skipped or relaxed, and a
// bad stored address can never be fixed by retrying.
func ParseEmailAddress(raw string) (EmailAddress, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return EmailAddress{}, fmt.Errorf("%w: empty address", ErrInvalidEmailAddress)
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return EmailAddress{}, fmt.Errorf("%w: address contains whitespace: %q", ErrInvalidEmailAddress, raw)
	}
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return EmailAddress{}, fmt.Errorf("%w: %q", ErrInvalidEmailAddress, raw)
	}
	if strings.IndexByte(s[at+1:], '@') != -1 {
		return EmailAddress{}, fmt.Errorf("%w: multiple '@' in %q", ErrInvalidEmailAddress, raw)
	}
	return EmailAddress{value: s}, nil
}

func (e EmailAddress) String() string { return e.value }
