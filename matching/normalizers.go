package matching

import (
	"strings"
	"time"

	"github.com/mmdatafocus/fleet_backend/utils"
)

// Normalizer maps a raw column value to its comparable form. An empty result never agrees.
type Normalizer func(string) string

func NormalizeName(s string) string {
	return utils.CollapseWhitespace(s)
}

func NormalizeCode(s string) string {
	return utils.AlphaNumericUpper(s)
}

// NormalizeCarNumber is NormalizeCode with leading zeros dropped ("001" and "1" agree).
func NormalizeCarNumber(s string) string {
	code := utils.AlphaNumericUpper(s)
	trimmed := strings.TrimLeft(code, "0")
	if trimmed == "" && code != "" {
		return "0"
	}
	return trimmed
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func PhoneNormalizer(defaultRegion string) Normalizer {
	return func(s string) string {
		return utils.NormalizePhoneNumber(s, defaultRegion)
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// NormalizeDate reduces any supported timestamp or date layout to YYYY-MM-DD.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// NormalizeAmount renders the decimal canonically so "1,200.50" and "1200.5" agree.
func NormalizeAmount(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	d, err := utils.ParseDecimal(s)
	if err != nil {
		return ""
	}
	return d.String()
}
