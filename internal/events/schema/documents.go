package schema

import (
	"strings"
	"unicode"
)

// digitsOnly strips punctuation from formatted document numbers.
func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allSameDigit(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// ValidCPF reports whether cpf (digits only) is a well-formed Brazilian
// taxpayer number: eleven digits, not all equal, both mod-11 check digits.
func ValidCPF(cpf string) bool {
	if len(cpf) != 11 || allSameDigit(cpf) {
		return false
	}
	for _, r := range cpf {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return cpfCheckDigit(cpf[:9]) == int(cpf[9]-'0') &&
		cpfCheckDigit(cpf[:10]) == int(cpf[10]-'0')
}

// cpfCheckDigit computes the next check digit for a 9 or 10 digit prefix.
func cpfCheckDigit(prefix string) int {
	sum := 0
	weight := len(prefix) + 1
	for i := range len(prefix) {
		sum += int(prefix[i]-'0') * weight
		weight--
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}

// CompleteCPF appends both check digits to a nine digit base.
func CompleteCPF(base string) string {
	first := cpfCheckDigit(base)
	withFirst := base + string(rune('0'+first))
	return withFirst + string(rune('0'+cpfCheckDigit(withFirst)))
}

var nisWeights = [10]int{3, 2, 9, 8, 7, 6, 5, 4, 3, 2}

// ValidNIS reports whether nis (digits only) is a well-formed NIS/PIS number.
func ValidNIS(nis string) bool {
	if len(nis) != 11 || allSameDigit(nis) {
		return false
	}
	sum := 0
	for i, w := range nisWeights {
		c := nis[i]
		if c < '0' || c > '9' {
			return false
		}
		sum += int(c-'0') * w
	}
	last := nis[10]
	if last < '0' || last > '9' {
		return false
	}
	check := 11 - sum%11
	if check >= 10 {
		check = 0
	}
	return check == int(last-'0')
}
