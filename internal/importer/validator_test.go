package importer

import (
	"strings"
	"testing"
	"time"
)

func validFields() map[string]string {
	return map[string]string{
		ColEmployeeNumber: "E100",
		ColFirstName:      "Amina",
		ColLastName:       "Odhiambo",
		ColEmail:          "Amina.Odhiambo@Example.com",
		ColDepartment:     "Engineering",
		ColSalary:         "120000.50",
		ColCurrency:       "KES",
		ColCountryCode:    "KE",
		ColStartDate:      "2024-03-01",
	}
}

func TestValidateAcceptsFullRow(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	row := &RawRow{Number: 1, Fields: validFields()}

	got, errs := Validate(row, now)
	if errs != nil {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if got.EmployeeNumber != "E100" {
		t.Errorf("employee number = %q", got.EmployeeNumber)
	}
	if got.Email != "Amina.Odhiambo@Example.com" {
		t.Errorf("email should keep its casing, got %q", got.Email)
	}
	if got.EmailKey != "amina.odhiambo@example.com" {
		t.Errorf("email key = %q", got.EmailKey)
	}
	if got.Salary == nil || got.Salary.String() != "120000.5" {
		t.Errorf("salary = %v", got.Salary)
	}
	if got.StartDate == nil || got.StartDate.Format("2006-01-02") != "2024-03-01" {
		t.Errorf("start date = %v", got.StartDate)
	}
}

func TestValidateOptionalFieldsMayBeBlank(t *testing.T) {
	row := &RawRow{Number: 1, Fields: map[string]string{
		ColEmployeeNumber: "E1",
		ColFirstName:      "A",
		ColLastName:       "B",
		ColEmail:          "a@x.co",
	}}

	got, errs := Validate(row, time.Now().UTC())
	if errs != nil {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if got.Department != nil || got.Salary != nil || got.Currency != nil || got.CountryCode != nil || got.StartDate != nil {
		t.Errorf("optional fields should be nil: %+v", got)
	}
}

func TestValidateFieldFailures(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(f map[string]string)
		wantField string
	}{
		{"missing employee number", func(f map[string]string) { f[ColEmployeeNumber] = "  " }, ColEmployeeNumber},
		{"employee number too long", func(f map[string]string) { f[ColEmployeeNumber] = strings.Repeat("x", 51) }, ColEmployeeNumber},
		{"employee number control char", func(f map[string]string) { f[ColEmployeeNumber] = "E1\x00" }, ColEmployeeNumber},
		{"missing first name", func(f map[string]string) { f[ColFirstName] = "" }, ColFirstName},
		{"last name too long", func(f map[string]string) { f[ColLastName] = strings.Repeat("y", 101) }, ColLastName},
		{"missing email", func(f map[string]string) { f[ColEmail] = "" }, ColEmail},
		{"email without domain dot", func(f map[string]string) { f[ColEmail] = "a@host" }, ColEmail},
		{"email without at sign", func(f map[string]string) { f[ColEmail] = "a.host.com" }, ColEmail},
		{"email too long", func(f map[string]string) { f[ColEmail] = strings.Repeat("a", 250) + "@x.com" }, ColEmail},
		{"department too long", func(f map[string]string) { f[ColDepartment] = strings.Repeat("d", 101) }, ColDepartment},
		{"salary with unit suffix", func(f map[string]string) { f[ColSalary] = "50k" }, ColSalary},
		{"salary with decimal unit suffix", func(f map[string]string) { f[ColSalary] = "66.5k" }, ColSalary},
		{"salary in exponent notation", func(f map[string]string) { f[ColSalary] = "1e5" }, ColSalary},
		{"negative salary", func(f map[string]string) { f[ColSalary] = "-100" }, ColSalary},
		{"salary over two decimals", func(f map[string]string) { f[ColSalary] = "100.505" }, ColSalary},
		{"salary beyond maximum", func(f map[string]string) { f[ColSalary] = "10000000001" }, ColSalary},
		{"unknown currency", func(f map[string]string) { f[ColCurrency] = "EUR" }, ColCurrency},
		{"unknown country code", func(f map[string]string) { f[ColCountryCode] = "US" }, ColCountryCode},
		{"start date wrong layout", func(f map[string]string) { f[ColStartDate] = "01/03/2024" }, ColStartDate},
		{"start date not a calendar day", func(f map[string]string) { f[ColStartDate] = "2024-02-30" }, ColStartDate},
		{"start date in the future", func(f map[string]string) { f[ColStartDate] = "2030-01-01" }, ColStartDate},
	}

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fields := validFields()
			tc.mutate(fields)
			got, errs := Validate(&RawRow{Number: 1, Fields: fields}, now)
			if got != nil {
				t.Fatalf("expected failure, got %+v", got)
			}
			if len(errs) != 1 {
				t.Fatalf("expected one field error, got %v", errs)
			}
			if errs[0].Field != tc.wantField {
				t.Errorf("failed field = %q, want %q", errs[0].Field, tc.wantField)
			}
		})
	}
}

func TestValidateLengthLimitsCountCharacters(t *testing.T) {
	// 60 Cyrillic characters are 120 bytes; the limits are on
	// characters, so this name is well within 100.
	fields := validFields()
	fields[ColFirstName] = strings.Repeat("б", 60)
	fields[ColDepartment] = strings.Repeat("日", 100)

	got, errs := Validate(&RawRow{Number: 1, Fields: fields}, time.Now().UTC())
	if errs != nil {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if got.FirstName != fields[ColFirstName] {
		t.Errorf("first name = %q", got.FirstName)
	}

	fields = validFields()
	fields[ColFirstName] = strings.Repeat("б", 101)
	if _, errs := Validate(&RawRow{Number: 1, Fields: fields}, time.Now().UTC()); len(errs) != 1 || errs[0].Field != ColFirstName {
		t.Errorf("101 characters should fail: %v", errs)
	}
}

func TestValidateReportsFirstFailurePerField(t *testing.T) {
	fields := validFields()
	fields[ColEmployeeNumber] = ""
	fields[ColEmail] = "broken"
	fields[ColSalary] = "abc"

	_, errs := Validate(&RawRow{Number: 1, Fields: fields}, time.Now().UTC())
	if len(errs) != 3 {
		t.Fatalf("expected three field errors, got %v", errs)
	}

	seen := map[string]int{}
	for _, e := range errs {
		seen[e.Field]++
	}
	for field, n := range seen {
		if n != 1 {
			t.Errorf("field %q reported %d times", field, n)
		}
	}
}

func TestValidateNormalizesCodesToUpper(t *testing.T) {
	fields := validFields()
	fields[ColCurrency] = "kes"
	fields[ColCountryCode] = "ke"

	got, errs := Validate(&RawRow{Number: 1, Fields: fields}, time.Now().UTC())
	if errs != nil {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if *got.Currency != "KES" || *got.CountryCode != "KE" {
		t.Errorf("codes not uppercased: %v %v", *got.Currency, *got.CountryCode)
	}
}

func TestCanonicalColumn(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Employee Number", "employee_number"},
		{"EMPLOYEE_NUMBER", "employee_number"},
		{"  first_name ", "first_name"},
		{"Start Date", "start_date"},
	}
	for _, tc := range tests {
		if got := CanonicalColumn(tc.in); got != tc.want {
			t.Errorf("CanonicalColumn(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMissingColumns(t *testing.T) {
	missing := MissingColumns([]string{"Employee Number", "First Name", "department"})
	want := map[string]bool{ColLastName: true, ColEmail: true}
	if len(missing) != 2 {
		t.Fatalf("missing = %v", missing)
	}
	for _, col := range missing {
		if !want[col] {
			t.Errorf("unexpected missing column %q", col)
		}
	}

	if missing := MissingColumns([]string{"employee_number", "first_name", "last_name", "email"}); missing != nil {
		t.Errorf("complete header reported missing columns: %v", missing)
	}
}
