package schema

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestValidCPF(t *testing.T) {
	tests := []struct {
		cpf  string
		want bool
	}{
		{"52998224725", true},
		{"11144477735", true},
		{"52998224724", false},
		{"11111111111", false},
		{"5299822472", false},
		{"5299822472a", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.cpf, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidCPF(tt.cpf))
		})
	}
}

func TestValidNIS(t *testing.T) {
	assert.True(t, ValidNIS("17033259504"))
	assert.True(t, ValidNIS("12345678900"))
	assert.False(t, ValidNIS("12345678901"))
	assert.False(t, ValidNIS("00000000000"))
	assert.False(t, ValidNIS("1703325950"))
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "52998224725", digitsOnly("529.982.247-25"))
	assert.Equal(t, "01310100", digitsOnly("01310-100"))
	assert.Equal(t, "", digitsOnly("abc"))
}

// Property: completing any nine digit base yields a valid CPF, and changing
// the final check digit always invalidates it.
func TestCPFCheckDigitsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	baseGen := gen.IntRange(0, 999999999).
		Map(func(n int) string { return fmt.Sprintf("%09d", n) }).
		SuchThat(func(base string) bool { return !allSameDigit(base) })

	properties.Property("completed CPF is valid", prop.ForAll(
		func(base string) bool {
			return ValidCPF(CompleteCPF(base))
		},
		baseGen,
	))

	properties.Property("altered check digit is invalid", prop.ForAll(
		func(base string, delta int) bool {
			cpf := CompleteCPF(base)
			last := (int(cpf[10]-'0') + delta) % 10
			return !ValidCPF(cpf[:10] + string(rune('0'+last)))
		},
		baseGen,
		gen.IntRange(1, 9),
	))

	properties.TestingRun(t)
}
