package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var prefixRe = regexp.MustCompile(`^[A-Z0-9_]{1,16}$`)

const MaxPadding = 18

// FormatCode renders prefix + "-" + n zero-padded to at least padding digits.
// Padding is a minimum width: FormatCode("ITEM", 12345, 3) == "ITEM-12345".
func FormatCode(prefix string, n int64, padding int) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("code prefix is empty")
	}
	if n <= 0 {
		return "", fmt.Errorf("invalid sequence number: %d", n)
	}
	if padding < 0 {
		padding = 0
	}
	return fmt.Sprintf("%s-%0*d", prefix, padding, n), nil
}

// ParseNumber returns the number after the last "-" of a formatted code.
func ParseNumber(code string) (int64, error) {
	idx := strings.LastIndex(code, "-")
	if idx < 0 || idx == len(code)-1 {
		return 0, fmt.Errorf("malformed code %q", code)
	}
	n, err := strconv.ParseInt(code[idx+1:], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("malformed code %q", code)
	}
	return n, nil
}

// ValidPrefix reports whether prefix is 1-16 characters of A-Z, 0-9 or underscore.
func ValidPrefix(prefix string) bool {
	return prefixRe.MatchString(prefix)
}

// ValidPadding reports whether padding is within 0..MaxPadding.
func ValidPadding(padding int) bool {
	return padding >= 0 && padding <= MaxPadding
}
