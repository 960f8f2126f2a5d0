package email

import (
	"strings"
	"unicode"
)

// Salutation returns the greeting name for credential delivery mail. The
// voter's display name wins; an empty one falls back to the mailbox local
// part so templates never render a blank greeting.
func Salutation(displayName, address string) string {
	if name := strings.TrimSpace(displayName); name != "" {
		return name
	}
	first, _ := DeriveNameFromAddress(address)
	return first
}

// DeriveNameFromAddress splits a mail address's local part into a first and
// last name guess. Used only for salutations, never for identity.
func DeriveNameFromAddress(address string) (string, string) {
	localPart := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		localPart = address[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "Voter", "Voter"
	}

	first := capitalize(parts[0])
	last := "Voter"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
