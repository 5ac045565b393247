// Package validation checks request payloads against per-endpoint schemas
// and screens string fields for injection payloads before they reach a
// handler.
package validation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bayeshealth/diagnosis-api/internal/apperr"
)

// Schema declares the expected shape of one endpoint's payload.
type Schema struct {
	Required []string
	Optional []string
}

// Config toggles the detection categories.
type Config struct {
	XSS bool `koanf:"xss"`
	SQL bool `koanf:"sql"`
}

// DefaultConfig enables every category.
func DefaultConfig() Config {
	return Config{XSS: true, SQL: true}
}

const (
	maxFieldLength = 1000

	// Bounds on list-valued inputs such as reported symptoms.
	maxListItems  = 50
	maxItemLength = 100
)

var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)<iframe[^>]*>`),
}

var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)\bUNION\b.*\bSELECT\b`),
	regexp.MustCompile(`(?is)\bSELECT\b.*\bFROM\b`),
	regexp.MustCompile(`(?is)\bINSERT\b.*\bINTO\b`),
	regexp.MustCompile(`(?is)\bDROP\b.*\bTABLE\b`),
	regexp.MustCompile(`(?is)\bDELETE\b.*\bFROM\b`),
}

var sanitizePattern = regexp.MustCompile(`[<>"']`)

// Validator screens payloads. It holds no per-request state and is safe
// for concurrent use.
type Validator struct {
	cfg Config
}

// New creates a Validator with the given category toggles.
func New(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate checks the payload against the schema and returns a sanitized
// copy. Order: required-field presence, attack-signature screening on
// every string value, then sanitization of the remaining strings.
// Failures are *apperr.Error values; a security failure names the
// triggering field.
func (v *Validator) Validate(payload map[string]any, schema Schema) (map[string]any, error) {
	if payload == nil {
		return nil, apperr.Malformed("Request body must be a JSON object")
	}

	for _, field := range schema.Required {
		value, ok := payload[field]
		if !ok {
			return nil, apperr.Validation("Missing required field: " + field).WithField(field)
		}
		if isEmpty(value) {
			return nil, apperr.Validation("Field must not be empty: " + field).WithField(field)
		}
	}

	if len(schema.Required) > 0 || len(schema.Optional) > 0 {
		allowed := make(map[string]bool, len(schema.Required)+len(schema.Optional))
		for _, f := range schema.Required {
			allowed[f] = true
		}
		for _, f := range schema.Optional {
			allowed[f] = true
		}
		for field := range payload {
			if !allowed[field] {
				return nil, apperr.Validation("Field is not allowed: " + field).WithField(field)
			}
		}
	}

	for field, value := range payload {
		if err := v.screenValue(field, value); err != nil {
			return nil, err
		}
	}

	cleaned := make(map[string]any, len(payload))
	for field, value := range payload {
		cleaned[field] = sanitizeValue(value)
	}
	return cleaned, nil
}

// Screen checks a single value for attack signatures without sanitizing.
func (v *Validator) Screen(field string, value any) error {
	return v.screenValue(field, value)
}

func (v *Validator) screenValue(field string, value any) error {
	switch val := value.(type) {
	case string:
		return v.screenString(field, val)
	case []any:
		for _, item := range val {
			if err := v.screenValue(field, item); err != nil {
				return err
			}
		}
	case map[string]any:
		for key, item := range val {
			if err := v.screenValue(field+"."+key, item); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Validator) screenString(field, s string) error {
	if v.cfg.XSS {
		for _, p := range xssPatterns {
			if p.MatchString(s) {
				return apperr.Security("Potential XSS attack detected in " + field).WithField(field)
			}
		}
	}
	if v.cfg.SQL {
		for _, p := range sqlPatterns {
			if p.MatchString(s) {
				return apperr.Security("Potential SQL injection detected in " + field).WithField(field)
			}
		}
	}
	return nil
}

// Sanitize strips characters structurally significant to HTML, trims
// surrounding whitespace and caps the length. Idempotent: applying it
// twice yields the same string.
func Sanitize(s string) string {
	s = sanitizePattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if len(s) > maxFieldLength {
		// Cut on a rune boundary so the truncated value stays valid UTF-8.
		cut := maxFieldLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimSpace(s[:cut])
	}
	return s
}

func sanitizeValue(value any) any {
	switch val := value.(type) {
	case string:
		return Sanitize(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for key, item := range val {
			out[key] = sanitizeValue(item)
		}
		return out
	default:
		return value
	}
}

// isEmpty reports whether a required value counts as missing. Numbers and
// booleans are never empty; zero is a legitimate probability input.
func isEmpty(value any) bool {
	switch val := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

// StringField extracts a sanitized string field from a validated payload.
func StringField(payload map[string]any, field string) (string, bool) {
	value, ok := payload[field].(string)
	return value, ok
}

// FloatField extracts a numeric field, accepting JSON numbers and numeric
// strings.
func FloatField(payload map[string]any, field string) (float64, error) {
	value, ok := payload[field]
	if !ok {
		return 0, apperr.Validation("Missing required field: " + field).WithField(field)
	}
	switch val := value.(type) {
	case float64:
		return val, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, apperr.Validation("Field must be numeric: " + field).WithField(field)
		}
		return f, nil
	default:
		return 0, apperr.Validation("Field must be numeric: " + field).WithField(field)
	}
}

// StringsField extracts a bounded list of strings.
func StringsField(payload map[string]any, field string) ([]string, error) {
	raw, ok := payload[field].([]any)
	if !ok {
		return nil, apperr.Validation("Field must be a list: " + field).WithField(field)
	}
	if len(raw) > maxListItems {
		return nil, apperr.Validation("Field must not exceed " + strconv.Itoa(maxListItems) + " items: " + field).WithField(field)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, apperr.Validation("Field must be a list of strings: " + field).WithField(field)
		}
		if len(s) > maxItemLength {
			return nil, apperr.Validation("List item exceeds " + strconv.Itoa(maxItemLength) + " characters: " + field).WithField(field)
		}
		out = append(out, s)
	}
	return out, nil
}
