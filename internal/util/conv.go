package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseOptionalFloat 空字符串返回 nil，NaN 和 Inf 视为格式错误
func ParseOptionalFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("non-finite number %q", s)
	}
	return &v, nil
}

// ParseOptionalInt 空字符串返回 nil
func ParseOptionalInt(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func OptionalString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// FormatNumber 与 JS 数字转字符串一致：80.5 -> "80.5", 80 -> "80"
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
