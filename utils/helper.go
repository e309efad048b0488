package utils

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

var validate = validator.New()

var entityTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,49}$`)

func UniqueSlice[T comparable](slice []T) []T {
	seen := make(map[T]bool, len(slice))
	result := make([]T, 0, len(slice))
	for _, v := range slice {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	return result
}

func DereferencePtr[T any](ptr *T, defaults ...T) T {
	if ptr != nil {
		return *ptr
	}
	var zero T
	if len(defaults) > 0 {
		return defaults[0]
	}
	return zero
}

func NilIfEmpty[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

// ValidateStruct runs the `validate` struct tags and turns failures into a single
// InvalidArgument error listing every offending field.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	fields := ProcessValidationErrors(err)
	if len(fields) == 0 {
		return NewInvalidArgumentError("invalid input: %s", err.Error())
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+fields[name])
	}
	return NewInvalidArgumentError("invalid input: %s", strings.Join(parts, "; "))
}

func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errorResponse
	}
	for _, fieldErr := range validationErrors {
		switch fieldErr.Tag() {
		case "required":
			errorResponse[fieldErr.Field()] = "is required"
		case "oneof":
			errorResponse[fieldErr.Field()] = "must be one of [" + fieldErr.Param() + "]"
		case "min":
			errorResponse[fieldErr.Field()] = "must have at least " + fieldErr.Param()
		case "gt", "gte", "lte":
			errorResponse[fieldErr.Field()] = "is out of range"
		default:
			errorResponse[fieldErr.Field()] = "is invalid"
		}
	}
	return errorResponse
}

// IsValidEntityType checks the shape of an open entity type string (e.g. "cars", "tank_cars").
func IsValidEntityType(entityType string) bool {
	return entityTypePattern.MatchString(entityType)
}

// CollapseWhitespace lowercases s and squeezes every whitespace run into one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// AlphaNumericUpper keeps letters and digits only, uppercased ("utlx 001-a" -> "UTLX001A").
func AlphaNumericUpper(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// NormalizePhoneNumber returns the E.164 form of phoneNumber, parsed in defaultRegion
// when it carries no country prefix. Unparseable input falls back to its digits.
func NormalizePhoneNumber(phoneNumber, defaultRegion string) string {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return ""
	}
	p, err := libphonenumber.Parse(phoneNumber, defaultRegion)
	if err == nil && libphonenumber.IsValidNumber(p) {
		return libphonenumber.Format(p, libphonenumber.E164)
	}
	var b strings.Builder
	for _, r := range phoneNumber {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseDecimal accepts amounts written with thousands separators or a currency prefix.
func ParseDecimal(value string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' || r == '-' {
			return r
		}
		return -1
	}, value)
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return decimal.Zero, fmt.Errorf("invalid decimal value %q", value)
	}
	return decimal.NewFromString(cleaned)
}
