package transform

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValidationError marks a record field that failed validation. Records with
// validation errors are parked, not retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

var (
	emailPattern        = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	nonDigitPattern     = regexp.MustCompile(`\D`)
	zipPattern          = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	policyNumberPattern = regexp.MustCompile(`^[A-Z0-9-]{5,20}$`)
	uuidPattern         = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

var usStates = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true,
	"CT": true, "DE": true, "FL": true, "GA": true, "HI": true, "ID": true,
	"IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true,
	"ME": true, "MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
	"MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true,
	"OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true, "DC": true, "PR": true, "VI": true, "GU": true,
	"MP": true, "AS": true,
}

// ValidateEmail lowercases and checks an email address. Empty input is
// allowed and returns empty.
func ValidateEmail(email string) (string, error) {
	if email == "" {
		return "", nil
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return "", validationErrorf("invalid email format: %s", email)
	}
	return email, nil
}

// ValidatePhone normalizes a US phone number to the NNN-NNN-NNNN form,
// accepting ten digits or eleven with a leading 1.
func ValidatePhone(phone string) (string, error) {
	if phone == "" {
		return "", nil
	}
	digits := nonDigitPattern.ReplaceAllString(phone, "")
	switch {
	case len(digits) == 10:
		return digits[:3] + "-" + digits[3:6] + "-" + digits[6:], nil
	case len(digits) == 11 && digits[0] == '1':
		return digits[1:4] + "-" + digits[4:7] + "-" + digits[7:], nil
	default:
		return "", validationErrorf("invalid phone number format: %s", phone)
	}
}

// ValidateZipCode accepts 5-digit and 5+4 ZIP codes.
func ValidateZipCode(zip string) (string, error) {
	if zip == "" {
		return "", nil
	}
	cleaned := strings.TrimSpace(zip)
	if !zipPattern.MatchString(cleaned) {
		return "", validationErrorf("invalid ZIP code format: %s", zip)
	}
	return cleaned, nil
}

// ValidateState checks a US state or territory code.
func ValidateState(state string) (string, error) {
	if state == "" {
		return "", nil
	}
	cleaned := strings.ToUpper(strings.TrimSpace(state))
	if !usStates[cleaned] {
		return "", validationErrorf("invalid state code: %s", cleaned)
	}
	return cleaned, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ValidateDate parses an ISO-style date or timestamp.
func ValidateDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, validationErrorf("invalid date format: %s", raw)
}

// ValidateCurrencyAmount parses a non-negative monetary amount, tolerating
// thousands separators, and rounds to cents.
func ValidateCurrencyAmount(raw any) (*float64, error) {
	if raw == nil {
		return nil, nil
	}

	var amount float64
	switch v := raw.(type) {
	case float64:
		amount = v
	case int:
		amount = float64(v)
	case string:
		if v == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil {
			return nil, validationErrorf("invalid currency amount: %v", raw)
		}
		amount = parsed
	default:
		return nil, validationErrorf("invalid currency amount: %v", raw)
	}

	if amount < 0 {
		return nil, validationErrorf("currency amount cannot be negative: %v", raw)
	}

	rounded := float64(int64(amount*100+0.5)) / 100
	return &rounded, nil
}

// ValidatePolicyNumber uppercases and checks a policy number: alphanumeric
// with hyphens, 5 to 20 characters.
func ValidatePolicyNumber(policyNumber string) (string, error) {
	if policyNumber == "" {
		return "", nil
	}
	cleaned := strings.ToUpper(strings.TrimSpace(policyNumber))
	if !policyNumberPattern.MatchString(cleaned) {
		return "", validationErrorf("invalid policy number format: %s", policyNumber)
	}
	return cleaned, nil
}

// ValidateStatus uppercases a status value and checks it against the allowed
// set.
func ValidateStatus(status string, valid map[string]bool) (string, error) {
	if status == "" {
		return "", nil
	}
	cleaned := strings.ToUpper(strings.TrimSpace(status))
	if !valid[cleaned] {
		allowed := make([]string, 0, len(valid))
		for s := range valid {
			allowed = append(allowed, s)
		}
		sort.Strings(allowed)
		return "", validationErrorf("invalid status: %s, must be one of: %s",
			cleaned, strings.Join(allowed, ", "))
	}
	return cleaned, nil
}

// CleanText collapses internal whitespace and trims the ends.
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ValidateUUID checks the canonical lowercase UUID form.
func ValidateUUID(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	cleaned := strings.ToLower(raw)
	if !uuidPattern.MatchString(cleaned) {
		return "", validationErrorf("invalid UUID format: %s", raw)
	}
	return cleaned, nil
}
