package wce

import "testing"

func TestResolvePrefersEarlierAlias(t *testing.T) {
	t.Parallel()

	lead := SourceLead{
		"FirstName":  "Jane",
		"first_name": "Janet",
	}
	got, ok := Resolve(lead, FieldFirstName)
	if !ok || got != "Jane" {
		t.Fatalf("Resolve first name = %q, %v; want Jane, true", got, ok)
	}
}

func TestResolveSkipsNullAndEmpty(t *testing.T) {
	t.Parallel()

	lead := SourceLead{
		"EMailAddress1": nil,
		"emailAddress1": "  ",
		"email":         "jane@example.com",
	}
	got, ok := Resolve(lead, FieldEmail)
	if !ok || got != "jane@example.com" {
		t.Fatalf("Resolve email = %q, %v; want jane@example.com, true", got, ok)
	}
}

func TestResolveAbsentField(t *testing.T) {
	t.Parallel()

	if got, ok := Resolve(SourceLead{}, FieldWebsite); ok {
		t.Fatalf("Resolve on empty lead = %q, true; want ok=false", got)
	}
	if _, ok := Resolve(nil, FieldWebsite); ok {
		t.Fatal("Resolve on nil lead should report ok=false")
	}
}

func TestResolveRendersNumbers(t *testing.T) {
	t.Parallel()

	lead := SourceLead{"zipCode": float64(10115)}
	got, ok := Resolve(lead, FieldPostalCode)
	if !ok || got != "10115" {
		t.Fatalf("Resolve postal code = %q, %v; want 10115, true", got, ok)
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		lead SourceLead
		want string
	}{
		{"full name", SourceLead{"FirstName": "Jane", "LastName": "Doe"}, "Jane Doe"},
		{"last only", SourceLead{"LastName": "Doe"}, "Doe"},
		{"company fallback", SourceLead{"CompanyName": "Acme GmbH"}, "Acme GmbH"},
		{"placeholder", SourceLead{}, "Unknown Lead"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := DisplayName(tc.lead); got != tc.want {
				t.Fatalf("DisplayName = %q, want %q", got, tc.want)
			}
		})
	}
}
