package utils

import (
	"errors"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode"
)

const (
	ERR_EMPTY_STRING   = "empty string"
	ERR_INVALID_INT    = "invalid integer format"
	ERR_INVALID_NUMBER = "invalid number format"
	ERR_INVALID_BOOL   = "invalid boolean format"
	ERR_OUT_OF_RANGE   = "value out of int64 range"
)

var (
	ErrEmptyString   = errors.New(ERR_EMPTY_STRING)
	ErrInvalidInt    = errors.New(ERR_INVALID_INT)
	ErrInvalidNumber = errors.New(ERR_INVALID_NUMBER)
	ErrInvalidBool   = errors.New(ERR_INVALID_BOOL)
	ErrOutOfRange    = errors.New(ERR_OUT_OF_RANGE)
)

// StripSeparators removes ',' '_' and whitespace used as digit group separators.
func StripSeparators(s string) string {
	clean := make([]rune, 0, len(s))
	for _, r := range s {
		if r == ',' || r == '_' || unicode.IsSpace(r) {
			continue
		}
		clean = append(clean, r)
	}
	return string(clean)
}

// ParseInt64 converts a numeric string into int64.
// Group separators are ignored. Returns error if the value doesn't fit in int64.
// n1, _ := ParseInt64("1,234,567")         // 1234567
// n2, err := ParseInt64("999999999999999999999999999")
// err: value out of int64 range
func ParseInt64(s string) (int64, error) {
	s = StripSeparators(strings.TrimSpace(s))
	if s == "" {
		return 0, ErrEmptyString
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return v, nil
	}

	// maybe it's just too big
	bigInt, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0, ErrInvalidInt
	}

	if bigInt.Cmp(big.NewInt(math.MaxInt64)) > 0 ||
		bigInt.Cmp(big.NewInt(math.MinInt64)) < 0 {
		return 0, ErrOutOfRange
	}

	return bigInt.Int64(), nil
}

// ParseNumber parses a decimal string into float64.
// f1, _ := ParseNumber("1_234.5")   // 1234.5
// f2, _ := ParseNumber("-1,000")    // -1000
func ParseNumber(s string) (float64, error) {
	s = StripSeparators(strings.TrimSpace(s))
	if s == "" {
		return 0, ErrEmptyString
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidNumber
	}
	return f, nil
}

// ParseBool accepts true/false, yes/no, y/n and 1/0 in any case.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return false, ErrEmptyString
	case "true", "yes", "y", "1":
		return true, nil
	case "false", "no", "n", "0":
		return false, nil
	}
	return false, ErrInvalidBool
}

// Int64ToString converts an int64 into its decimal string representation.
func Int64ToString(v int64) string {
	return strconv.FormatInt(v, 10)
}
