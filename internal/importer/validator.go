package importer

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Column names the pipeline understands. Readers canonicalize headers
// to these before rows reach the validator.
const (
	ColEmployeeNumber = "employee_number"
	ColFirstName      = "first_name"
	ColLastName       = "last_name"
	ColEmail          = "email"
	ColDepartment     = "department"
	ColSalary         = "salary"
	ColCurrency       = "currency"
	ColCountryCode    = "country_code"
	ColStartDate      = "start_date"
)

// RequiredColumns must all be present in the header; uploads without
// them are rejected before any row is read.
var RequiredColumns = []string{ColEmployeeNumber, ColFirstName, ColLastName, ColEmail}

var (
	supportedCurrencies = map[string]struct{}{
		"KES": {}, "USD": {}, "ZAR": {}, "NGN": {},
		"GHS": {}, "UGX": {}, "RWF": {}, "TZS": {},
	}
	supportedCountries = map[string]struct{}{
		"KE": {}, "NG": {}, "GH": {}, "UG": {}, "ZA": {}, "TZ": {}, "RW": {},
	}

	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	maxSalary = decimal.New(1, 10) // 10^10
)

// FieldError is one failed field constraint; at most one per field.
type FieldError struct {
	Field   string
	Message string
}

// Validate checks a raw row against the employee schema and returns
// either a normalized row or the per-field failures. now anchors the
// start_date upper bound; callers pass time.Now().UTC().
func Validate(row *RawRow, now time.Time) (*NormalizedRow, []FieldError) {
	var errs []FieldError
	fail := func(field, msg string) {
		errs = append(errs, FieldError{Field: field, Message: msg})
	}

	out := &NormalizedRow{Number: row.Number}

	number := strings.TrimSpace(row.Fields[ColEmployeeNumber])
	switch {
	case number == "":
		fail(ColEmployeeNumber, "is required")
	case utf8.RuneCountInString(number) > 50:
		fail(ColEmployeeNumber, "must be at most 50 characters")
	case hasControlChars(number):
		fail(ColEmployeeNumber, "must not contain control characters")
	default:
		out.EmployeeNumber = number
	}

	out.FirstName = validateName(ColFirstName, row.Fields[ColFirstName], fail)
	out.LastName = validateName(ColLastName, row.Fields[ColLastName], fail)

	email := strings.TrimSpace(row.Fields[ColEmail])
	switch {
	case email == "":
		fail(ColEmail, "is required")
	case utf8.RuneCountInString(email) > 255:
		fail(ColEmail, "must be at most 255 characters")
	case !emailPattern.MatchString(email):
		fail(ColEmail, "must be a valid email address")
	default:
		out.Email = email
		out.EmailKey = strings.ToLower(email)
	}

	if dept := strings.TrimSpace(row.Fields[ColDepartment]); dept != "" {
		if utf8.RuneCountInString(dept) > 100 {
			fail(ColDepartment, "must be at most 100 characters")
		} else {
			out.Department = &dept
		}
	}

	if raw := strings.TrimSpace(row.Fields[ColSalary]); raw != "" {
		salary, err := parseSalary(raw)
		if err != nil {
			fail(ColSalary, err.Error())
		} else {
			out.Salary = salary
		}
	}

	if cur := strings.ToUpper(strings.TrimSpace(row.Fields[ColCurrency])); cur != "" {
		if _, ok := supportedCurrencies[cur]; !ok {
			fail(ColCurrency, "is not a supported currency")
		} else {
			out.Currency = &cur
		}
	}

	if cc := strings.ToUpper(strings.TrimSpace(row.Fields[ColCountryCode])); cc != "" {
		if _, ok := supportedCountries[cc]; !ok {
			fail(ColCountryCode, "is not a supported country code")
		} else {
			out.CountryCode = &cc
		}
	}

	if raw := strings.TrimSpace(row.Fields[ColStartDate]); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			fail(ColStartDate, "must be a valid date in YYYY-MM-DD format")
		} else if date.After(now.Truncate(24 * time.Hour)) {
			fail(ColStartDate, "must not be in the future")
		} else {
			out.StartDate = &date
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func validateName(field, raw string, fail func(field, msg string)) string {
	name := strings.TrimSpace(raw)
	switch {
	case name == "":
		fail(field, "is required")
		return ""
	case utf8.RuneCountInString(name) > 100:
		fail(field, "must be at most 100 characters")
		return ""
	}
	return name
}

// parseSalary accepts plain numerics only. decimal.NewFromString also
// takes exponent notation, so characters are checked first to keep
// inputs like "50k" or "1e5" out.
func parseSalary(raw string) (*decimal.Decimal, error) {
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
		case r == '.':
		case r == '-' && i == 0:
		default:
			return nil, fmt.Errorf("must be a number")
		}
	}

	salary, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("must be a number")
	}
	if salary.IsNegative() {
		return nil, fmt.Errorf("must not be negative")
	}
	if salary.GreaterThan(maxSalary) {
		return nil, fmt.Errorf("exceeds the maximum allowed value")
	}
	if salary.Exponent() < -2 {
		return nil, fmt.Errorf("must have at most two decimal places")
	}
	return &salary, nil
}

func hasControlChars(s string) bool {
	return strings.ContainsFunc(s, unicode.IsControl)
}

// CanonicalColumn normalizes a header cell for lookup: lowercased,
// trimmed, spaces treated the same as underscores.
func CanonicalColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, " ", "_")
}

// MissingColumns returns the required columns absent from a header.
func MissingColumns(header []string) []string {
	seen := make(map[string]struct{}, len(header))
	for _, h := range header {
		seen[CanonicalColumn(h)] = struct{}{}
	}
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := seen[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}
