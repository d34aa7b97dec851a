package npb

import (
	"database/sql"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// walkOffMarkers mark a half-inning that was never played.
var walkOffMarkers = []string{"X", "x", "×", "Ｘ", "ｘ"}

// NormalizeDigits folds full-width characters (digits included) to their ASCII forms and trims.
func NormalizeDigits(text string) string {
	return strings.TrimSpace(width.Fold.String(text))
}

// ParseScore extracts the integer in a score cell. Dashes, spaces and any other
// decoration are dropped; ok is false when no digit remains.
func ParseScore(text string) (n int, ok bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, NormalizeDigits(text))
	if digits == "" {
		return 0, false
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseInningCell is ParseScore, except that a lone walk-off marker means "not played"
// rather than zero runs.
func ParseInningCell(text string) (int, bool) {
	if IsWalkOffMarker(text) {
		return 0, false
	}
	return ParseScore(text)
}

// InningCell is ParseInningCell as a nullable value.
func InningCell(text string) sql.NullInt32 {
	n, ok := ParseInningCell(text)
	if !ok {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(n), Valid: true}
}

// IsWalkOffMarker reports whether the cell is nothing but a walk-off marker.
func IsWalkOffMarker(text string) bool {
	t := strings.TrimSpace(text)
	for _, m := range walkOffMarkers {
		if t == m {
			return true
		}
	}
	return false
}

// ContainsWalkOff reports whether a marker appears anywhere in the cell ("X", "3x").
func ContainsWalkOff(text string) bool {
	for _, m := range walkOffMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func nullInt(text string) sql.NullInt32 {
	n, ok := ParseScore(text)
	if !ok {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(n), Valid: true}
}
