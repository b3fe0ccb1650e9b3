package identity

import (
	"strings"
	"unicode"

	"github.com/jwalitptl/hospital-intake/internal/model"
)

// PhoneRules describes how local and international spellings of the same
// number relate, e.g. 92 300 1234567 and 0300 1234567.
type PhoneRules struct {
	CountryCode string
	TrunkPrefix string
}

func DefaultPhoneRules() PhoneRules {
	return PhoneRules{CountryCode: "92", TrunkPrefix: "0"}
}

// NormalizePhone keeps digits only.
func NormalizePhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// national strips the international dialing prefix, the country code or the
// trunk prefix, leaving the national significant number.
func (r PhoneRules) national(digits string) string {
	digits = strings.TrimPrefix(digits, "00")
	switch {
	case r.CountryCode != "" && strings.HasPrefix(digits, r.CountryCode) && len(digits) > len(r.CountryCode)+6:
		// +92 (0)300 ... carries both prefixes.
		return strings.TrimPrefix(digits[len(r.CountryCode):], r.TrunkPrefix)
	case r.TrunkPrefix != "" && strings.HasPrefix(digits, r.TrunkPrefix):
		return digits[len(r.TrunkPrefix):]
	}
	return digits
}

// Canonical is the form stored on the patient row: trunk prefix plus the
// national number.
func (r PhoneRules) Canonical(raw string) string {
	digits := NormalizePhone(raw)
	if digits == "" {
		return ""
	}
	return r.TrunkPrefix + r.national(digits)
}

// Variants lists every stored spelling that refers to the same number. The
// canonical form comes first.
func (r PhoneRules) Variants(raw string) []string {
	digits := NormalizePhone(raw)
	if digits == "" {
		return nil
	}
	nsn := r.national(digits)
	candidates := []string{r.TrunkPrefix + nsn, r.CountryCode + nsn, nsn, digits}

	out := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// NormalizeNationalID drops separators and uppercases, so 35202-1234567-1 and
// 3520212345671 compare equal.
func NormalizeNationalID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// Key builds the lookup key for a registration.
func (r PhoneRules) Key(phone, nationalID string) model.IdentityKey {
	return model.IdentityKey{
		PhoneVariants: r.Variants(phone),
		NationalID:    NormalizeNationalID(nationalID),
	}
}

// Matches reports whether p is one of the patients key refers to.
func Matches(p *model.Patient, key model.IdentityKey) bool {
	return key.Matches(p)
}

// FirstMatch returns the first candidate matching key, in the order given.
// Candidates are expected oldest first. When a household shares one phone
// the oldest record wins; there is no ranking.
func FirstMatch(candidates []*model.Patient, key model.IdentityKey) *model.Patient {
	if key.IsEmpty() {
		return nil
	}
	for _, p := range candidates {
		if Matches(p, key) {
			return p
		}
	}
	return nil
}
