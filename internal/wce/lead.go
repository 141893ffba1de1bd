// Package wce models the upstream LeadSuccess (WCE) source system: the
// open-shaped lead records its OData feed produces and the attachment lookup
// endpoint. Upstream sources spell the same logical field several ways, so a
// single alias table maps logical field names to the accepted spellings in
// lookup order.
package wce

import (
	"fmt"
	"strings"
)

// SourceLead is the open mapping handed over by the browsing UI. It is
// read-only input; nothing in the bridge mutates it.
type SourceLead map[string]any

// Logical field names resolvable through the alias table.
const (
	FieldTopic       = "topic"
	FieldFirstName   = "firstname"
	FieldMiddleName  = "middlename"
	FieldLastName    = "lastname"
	FieldCompanyName = "companyname"
	FieldEmail       = "emailaddress1"
	FieldPhone       = "telephone1"
	FieldMobilePhone = "mobilephone"
	FieldJobTitle    = "jobtitle"
	FieldAddressLine = "address1_line1"
	FieldCity        = "address1_city"
	FieldPostalCode  = "address1_postalcode"
	FieldCountry     = "address1_country"
	FieldState       = "address1_stateorprovince"
	FieldWebsite     = "websiteurl"
	FieldDescription = "description"
)

// fieldAliases lists, per logical field, the accepted source spellings in the
// order they are tried. The first present non-null value wins. The CRM's own
// attribute names close each list so an already-mapped record resolves to
// itself.
var fieldAliases = map[string][]string{
	FieldTopic:       {"Topic", "topic", "Subject", "subject"},
	FieldFirstName:   {"FirstName", "firstName", "first_name", "firstname"},
	FieldMiddleName:  {"MiddleName", "middleName", "middle_name", "middlename"},
	FieldLastName:    {"LastName", "lastName", "last_name", "lastname"},
	FieldCompanyName: {"CompanyName", "companyName", "company", "Company", "companyname"},
	FieldEmail:       {"EMailAddress1", "emailAddress1", "email", "Email", "emailaddress1"},
	FieldPhone:       {"Address1_Telephone1", "telephone1", "phone", "Phone"},
	FieldMobilePhone: {"MobilePhone", "mobilePhone", "mobile", "Mobile", "mobilephone"},
	FieldJobTitle:    {"JobTitle", "jobTitle", "title", "Title", "jobtitle"},
	FieldAddressLine: {"Address1_Line1", "address1_Line1", "address", "Address", "address1_line1"},
	FieldCity:        {"Address1_City", "address1_City", "city", "City", "address1_city"},
	FieldPostalCode:  {"Address1_PostalCode", "address1_PostalCode", "postalCode", "zipCode", "address1_postalcode"},
	FieldCountry:     {"Address1_Country", "address1_Country", "country", "Country", "address1_country"},
	FieldState:       {"Address1_StateOrProvince", "address1_StateOrProvince", "state", "State", "address1_stateorprovince"},
	FieldWebsite:     {"WebSiteUrl", "webSiteUrl", "website", "Website", "websiteurl"},
	FieldDescription: {"Description", "description", "notes", "Notes"},
}

// Resolve returns the first present, non-null value for a logical field,
// rendered as a string. ok is false when no alias carries a value.
func Resolve(lead SourceLead, field string) (value string, ok bool) {
	aliases, known := fieldAliases[field]
	if !known || lead == nil {
		return "", false
	}
	for _, alias := range aliases {
		v, present := lead[alias]
		if !present || v == nil {
			continue
		}
		s := stringify(v)
		if s == "" {
			continue
		}
		return s, true
	}
	return "", false
}

// DisplayName renders a human-readable lead label: full name, then company,
// then a fixed placeholder.
func DisplayName(lead SourceLead) string {
	first, _ := Resolve(lead, FieldFirstName)
	last, _ := Resolve(lead, FieldLastName)
	full := strings.TrimSpace(first + " " + last)
	if full != "" {
		return full
	}
	if company, ok := Resolve(lead, FieldCompanyName); ok {
		return company
	}
	return "Unknown Lead"
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	case float64:
		// JSON numbers decode as float64; render integers without exponent.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}
