// Package convert translates human token amounts into their base integer
// representation and back. Amounts use 9 decimal places, the native token
// precision of the target network.
package convert

import (
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the number of fractional digits in one whole token.
const Decimals = 9

var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Tokens converts a decimal token amount such as "1.5" into its base integer
// string "1500000000". The input must be a non-negative decimal number with at
// most Decimals fractional digits.
func Tokens(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("empty token value")
	}
	if strings.HasPrefix(value, "-") {
		return "", fmt.Errorf("token value %q cannot be negative", value)
	}

	whole := value
	frac := ""
	if i := strings.IndexByte(value, '.'); i >= 0 {
		whole, frac = value[:i], value[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Decimals {
		return "", fmt.Errorf("token value %q has more than %d decimal places", value, Decimals)
	}
	// Right-pad the fraction to the full precision.
	frac += strings.Repeat("0", Decimals-len(frac))

	w, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return "", fmt.Errorf("invalid token value %q", value)
	}
	f, ok := new(big.Int).SetString(frac, 10)
	if !ok {
		return "", fmt.Errorf("invalid token value %q", value)
	}

	result := new(big.Int).Mul(w, scale)
	result.Add(result, f)
	return result.String(), nil
}

// FromNano converts a base integer string back into a decimal token amount,
// trimming trailing fractional zeros. It is the inverse of Tokens.
func FromNano(value string) (string, error) {
	value = strings.TrimSpace(value)
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return "", fmt.Errorf("invalid base integer value %q", value)
	}
	if n.Sign() < 0 {
		return "", fmt.Errorf("base integer value %q cannot be negative", value)
	}

	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(n, scale, frac)

	if frac.Sign() == 0 {
		return whole.String(), nil
	}

	fracStr := fmt.Sprintf("%0*d", Decimals, frac)
	fracStr = strings.TrimRight(fracStr, "0")
	return whole.String() + "." + fracStr, nil
}
