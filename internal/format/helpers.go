package format

import (
	"fmt"
	"strconv"
)

// Pct formats a relative effect (0.021 → "+2.10%"). Nil means the value
// was absent from the data.
func Pct(v *float64) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf("%+.2f%%", *v*100)
}

// PValue formats a p-value with trailing zeros trimmed ("0.0100" → "0.01").
func PValue(v *float64) string {
	if v == nil {
		return "—"
	}
	return strconv.FormatFloat(*v, 'g', 6, 64)
}

// Count formats an integer with thousands separators.
func Count(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg, s = true, s[1:]
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

// Truncate shortens s to maxLen characters, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// YesNo returns "yes" for true and "no" for false.
func YesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
