package sqliter

import (
	"math"
	"strconv"
	"strings"
)

// parseIntPrefix parses the longest leading decimal integer of s, after
// optional whitespace and sign. Text without leading digits yields 0 and
// out of range values saturate.
func parseIntPrefix(s string) int64 {
	i := skipSpace(s)
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}

	var v uint64
	overflow := false
	for ; i < len(s) && isDigit(s[i]); i++ {
		if overflow {
			continue
		}
		d := uint64(s[i] - '0')
		if v > (math.MaxUint64-d)/10 {
			overflow = true
			continue
		}
		v = v*10 + d
	}

	if neg {
		if overflow || v > uint64(math.MaxInt64)+1 {
			return math.MinInt64
		}
		return -int64(v)
	}
	if overflow || v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// parseFloatPrefix parses the longest leading decimal floating point number
// of s, including "inf" and "nan" spellings. Anything else yields 0.
func parseFloatPrefix(s string) float64 {
	start := skipSpace(s)
	i := start
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}

	rest := strings.ToLower(s[i:])
	for _, word := range []string{"infinity", "inf", "nan"} {
		if strings.HasPrefix(rest, word) {
			v, _ := strconv.ParseFloat(s[start:i+len(word)], 64)
			return v
		}
	}

	digits := 0
	for ; i < len(s) && isDigit(s[i]); i++ {
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for ; i < len(s) && isDigit(s[i]); i++ {
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	end := i
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			end = j
		}
	}

	// Range errors still carry the saturated value
	v, _ := strconv.ParseFloat(s[start:end], 64)
	return v
}

// floatToInt64 truncates toward zero, saturating at the int64 limits. NaN is 0.
func floatToInt64(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(f)
	}
}

// formatFloat renders f like printf's %g: six significant digits, trailing
// zeros dropped, exponent form for very large or small magnitudes.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}

func skipSpace(s string) int {
	i := 0
	for i < len(s) && (s[i] == ' ' || (s[i] >= '\t' && s[i] <= '\r')) {
		i++
	}
	return i
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
