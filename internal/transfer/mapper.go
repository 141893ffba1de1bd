package transfer

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/leadsuccess/dynamics-bridge/internal/wce"
)

// CRM lead attribute length limits.
const (
	limitName        = 50
	limitCompany     = 100
	limitJobTitle    = 100
	limitSubject     = 300
	limitDescription = 2000
	limitAddressLine = 250
	limitCity        = 80
	limitPostalCode  = 20
	limitState       = 50
	limitCountry     = 80
	limitEmail       = 100
	limitPhone       = 20
	limitWebsite     = 200
)

// Fixed classification codes, known-valid in a stock lead option set.
const (
	leadSourceWeb  = 3
	priorityNormal = 1
	statusNew      = 1
	stateOpen      = 0
)

const (
	defaultSubject  = "Lead from LeadSuccess"
	defaultLastName = "Unknown"
	defaultCompany  = "Unknown Company"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneStrip   = regexp.MustCompile(`[^\d\+\-\(\)\s]`)
)

// MapLead turns an open source record into the CRM lead shape. Every text
// field is trimmed and truncated to its CRM limit; fields that end up empty
// are omitted entirely because the CRM rejects null submissions for some
// optional attributes.
func MapLead(lead wce.SourceLead, logger *slog.Logger) map[string]any {
	if logger == nil {
		logger = slog.Default()
	}

	resolve := func(field string) string {
		v, _ := wce.Resolve(lead, field)
		return v
	}

	mapped := map[string]any{
		"subject":                  truncateText(withDefault(resolve(wce.FieldTopic), defaultSubject), limitSubject),
		"firstname":                truncateText(resolve(wce.FieldFirstName), limitName),
		"middlename":               truncateText(resolve(wce.FieldMiddleName), limitName),
		"lastname":                 truncateText(withDefault(resolve(wce.FieldLastName), defaultLastName), limitName),
		"companyname":              truncateText(withDefault(resolve(wce.FieldCompanyName), defaultCompany), limitCompany),
		"emailaddress1":            validateEmail(resolve(wce.FieldEmail)),
		"telephone1":               formatPhone(resolve(wce.FieldPhone)),
		"mobilephone":              formatPhone(resolve(wce.FieldMobilePhone)),
		"jobtitle":                 truncateText(resolve(wce.FieldJobTitle), limitJobTitle),
		"address1_line1":           truncateText(resolve(wce.FieldAddressLine), limitAddressLine),
		"address1_city":            truncateText(resolve(wce.FieldCity), limitCity),
		"address1_postalcode":      truncateText(resolve(wce.FieldPostalCode), limitPostalCode),
		"address1_country":         truncateText(resolve(wce.FieldCountry), limitCountry),
		"address1_stateorprovince": truncateText(resolve(wce.FieldState), limitState),
		"websiteurl":               validateURL(resolve(wce.FieldWebsite)),
		"description":              truncateText(resolve(wce.FieldDescription), limitDescription),
	}

	for key, value := range mapped {
		if s, ok := value.(string); ok && s == "" {
			delete(mapped, key)
		}
	}

	mapped["leadsourcecode"] = leadSourceWeb
	mapped["prioritycode"] = priorityNormal
	mapped["statuscode"] = statusNew
	mapped["statecode"] = stateOpen

	logTruncations(lead, mapped, logger)
	return mapped
}

func withDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// truncateText trims and clips to max runes, marking clipped values with an
// ellipsis so operators can tell the value is incomplete.
func truncateText(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

// validateEmail drops malformed addresses rather than sending them; the CRM
// enforces its own format check and a rejection there fails the whole create.
func validateEmail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if emailPattern.MatchString(s) && len([]rune(s)) <= limitEmail {
		return s
	}
	if runes := []rune(s); strings.Contains(s, "@") && len(runes) > limitEmail {
		return string(runes[:limitEmail])
	}
	return ""
}

// formatPhone keeps digits, plus, dashes, parentheses and spaces only.
func formatPhone(s string) string {
	if s == "" {
		return ""
	}
	clean := phoneStrip.ReplaceAllString(s, "")
	runes := []rune(clean)
	if len(runes) > limitPhone {
		clean = string(runes[:limitPhone])
	}
	return strings.TrimSpace(clean)
}

func validateURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	if runes := []rune(s); len(runes) > limitWebsite {
		s = string(runes[:limitWebsite])
	}
	return s
}

// logTruncations reports fields whose mapped value is shorter than the source
// value. Diagnostic only.
func logTruncations(lead wce.SourceLead, mapped map[string]any, logger *slog.Logger) {
	checks := map[string]string{
		"subject":     wce.FieldTopic,
		"firstname":   wce.FieldFirstName,
		"lastname":    wce.FieldLastName,
		"telephone1":  wce.FieldPhone,
		"mobilephone": wce.FieldMobilePhone,
	}
	for key, field := range checks {
		source, ok := wce.Resolve(lead, field)
		if !ok {
			continue
		}
		value, ok := mapped[key].(string)
		if !ok {
			continue
		}
		if len([]rune(source)) > len([]rune(value)) {
			logger.Warn("lead field truncated", "field", key, "source_len", len([]rune(source)), "mapped_len", len([]rune(value)))
		}
	}
}
