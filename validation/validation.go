package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"veriform/models"
	"veriform/storage"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// FieldError describes a single violated rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors collects every violation found in one pass; validation never stops
// at the first problem.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// FileDescriptor is what the multipart layer hands over per uploaded file.
// Bytes travel separately; validation only sees the declared metadata.
type FileDescriptor struct {
	FieldName string
	Filename  string
	MediaType string
	ByteSize  int64
}

// Parsed holds the coerced, normalized submission fields after a successful
// Validate call.
type Parsed struct {
	Kind             string    `validate:"required,oneof=registration trading"`
	FirstName        string    `validate:"required,min=2,max=50"`
	LastName         string    `validate:"required,min=2,max=50"`
	Email            string    `validate:"required,email"`
	Phone            string    `validate:"required"`
	NationalID       string    `validate:"required"`
	DateOfBirth      time.Time `validate:"required"`
	Address          string    `validate:"required,min=5,max=200"`
	City             string    `validate:"required,min=2,max=50"`
	State            string    `validate:"required,min=2,max=50"`
	PostalCode       string    `validate:"required"`
	CourseName       string    `validate:"required_if=Kind registration"`
	InvestmentAmount float64
	InvestmentGoals  string
	TermsAccepted    bool
	MarketingOptIn   bool
}

var (
	phoneRegex  = regexp.MustCompile(`^[6-9]\d{9}$`)
	postalRegex = regexp.MustCompile(`^\d{6}$`)
	digitsOnly  = regexp.MustCompile(`\D`)
)

// fieldAliases maps historical form field names onto canonical ones. Applied
// once at the ingress boundary so the rules below only see canonical names.
var fieldAliases = map[string]string{
	"aadharNumber":   "nationalId",
	"pincode":        "postalCode",
	"pinCode":        "postalCode",
	"agreeTerms":     "termsAccepted",
	"agreeMarketing": "marketingOptIn",
}

// Normalize trims every value and folds known field aliases into canonical
// names. Canonical names win when both are present.
func Normalize(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		name := k
		if canonical, ok := fieldAliases[k]; ok {
			name = canonical
		}
		if _, exists := out[name]; exists && name != k {
			continue
		}
		out[name] = strings.TrimSpace(v)
	}
	return out
}

// Validate checks a submission of the given kind against every rule and
// returns the coerced fields. It is pure: no storage, no registry, fully
// deterministic given now.
func Validate(kind string, fields map[string]string, files []FileDescriptor, now time.Time) (*Parsed, Errors) {
	fields = Normalize(fields)
	var errs Errors

	p := &Parsed{
		Kind:       kind,
		FirstName:  fields["firstName"],
		LastName:   fields["lastName"],
		Email:      strings.ToLower(fields["email"]),
		Phone:      fields["phone"],
		NationalID: digitsOnly.ReplaceAllString(fields["nationalId"], ""),
		Address:    fields["address"],
		City:       fields["city"],
		State:      fields["state"],
		PostalCode: fields["postalCode"],
		CourseName: fields["courseName"],
	}
	p.TermsAccepted = fields["termsAccepted"] == "true"
	p.MarketingOptIn = fields["marketingOptIn"] == "true"

	if raw := fields["dateOfBirth"]; raw != "" {
		dob, err := parseDate(raw)
		if err != nil {
			errs = append(errs, FieldError{"dateOfBirth", "invalid date of birth format"})
		} else {
			p.DateOfBirth = dob
		}
	}

	if raw := fields["investmentAmount"]; raw != "" {
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, FieldError{"investmentAmount", "investment amount must be a number"})
		} else {
			p.InvestmentAmount = amount
		}
	}
	p.InvestmentGoals = fields["investmentGoals"]

	errs = append(errs, structErrors(p)...)

	if p.Phone != "" && !phoneRegex.MatchString(p.Phone) {
		errs = append(errs, FieldError{"phone", "phone must be 10 digits starting with 6-9"})
	}
	if p.NationalID != "" && len(p.NationalID) != 12 {
		errs = append(errs, FieldError{"nationalId", "national id must contain exactly 12 digits"})
	}
	if p.PostalCode != "" && !postalRegex.MatchString(p.PostalCode) {
		errs = append(errs, FieldError{"postalCode", "postal code must be 6 digits"})
	}
	if !p.DateOfBirth.IsZero() {
		errs = append(errs, ageErrors(kind, p.DateOfBirth, now)...)
	}
	if !p.TermsAccepted {
		errs = append(errs, FieldError{"termsAccepted", "terms and conditions must be accepted"})
	}

	if kind == models.KindTrading {
		if p.InvestmentAmount < 10000 || p.InvestmentAmount > 10000000 {
			errs = append(errs, FieldError{"investmentAmount", "investment amount must be between 10,000 and 1,00,00,000"})
		}
		if n := len(p.InvestmentGoals); n < 20 || n > 500 {
			errs = append(errs, FieldError{"investmentGoals", "investment goals must be between 20 and 500 characters"})
		}
	}

	errs = append(errs, fileErrors(files)...)

	if len(errs) > 0 {
		return nil, errs
	}
	return p, nil
}

// ageErrors enforces the per-kind age bound: registrations accept 16-100,
// trading applications 18-100.
func ageErrors(kind string, dob time.Time, now time.Time) Errors {
	minAge := 16
	if kind == models.KindTrading {
		minAge = 18
	}
	age := models.WholeYears(dob, now)
	if age < minAge || age > 100 {
		return Errors{{"dateOfBirth", fmt.Sprintf("age must be between %d and 100 years", minAge)}}
	}
	return nil
}

// fileErrors requires exactly two descriptors covering the primary and
// signature slots, each with an allow-listed media type.
func fileErrors(files []FileDescriptor) Errors {
	var errs Errors
	seen := map[string]bool{}
	for _, f := range files {
		slot, ok := models.ResolveSlot(f.FieldName)
		if !ok {
			errs = append(errs, FieldError{f.FieldName, "unknown document field"})
			continue
		}
		if seen[slot] {
			errs = append(errs, FieldError{f.FieldName, "duplicate document for " + slot + " slot"})
			continue
		}
		seen[slot] = true
		if !storage.IsAllowedMediaType(f.MediaType) {
			errs = append(errs, FieldError{f.FieldName, "only jpeg, png and pdf files are allowed"})
		}
	}
	if !seen[models.SlotPrimary] {
		errs = append(errs, FieldError{"primaryDocument", "identity document is required"})
	}
	if !seen[models.SlotSignature] {
		errs = append(errs, FieldError{"signatureFile", "signature document is required"})
	}
	return errs
}

// structErrors runs the tag-based rules and flattens them into field errors.
func structErrors(p *Parsed) Errors {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var errs Errors
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			errs = append(errs, FieldError{
				Field:   lowerFirst(fe.Field()),
				Message: messageFor(fe),
			})
		}
	}
	return errs
}

func messageFor(fe validator.FieldError) string {
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "email":
		return "invalid email format"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return field + " is invalid"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// parseDate accepts the date formats the frontends have sent over time.
func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "02/01/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// ValidateStruct exposes the shared validator for request payloads outside
// the submission flow (admin registration, review requests).
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// FormatValidationError converts validator errors into a field->message map
// for JSON error envelopes.
func FormatValidationError(err error) map[string]string {
	out := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			out[lowerFirst(fe.Field())] = messageFor(fe)
		}
	}
	return out
}
