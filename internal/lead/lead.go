// Package lead models the qualification fields collected for a prospective
// business contact and the completion measure derived from them.
package lead

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Field identifies one of the collected lead attributes. Values match the
// form field names used by the UI.
type Field string

const (
	FieldCompanyName Field = "companyName"
	FieldIndustry    Field = "industry"
	FieldWebsite     Field = "website"
	FieldGoals       Field = "goals"
	FieldChallenges  Field = "challenges"
	FieldToolsUsed   Field = "toolsUsed"
)

var requiredFields = []Field{
	FieldCompanyName,
	FieldIndustry,
	FieldWebsite,
	FieldGoals,
	FieldChallenges,
	FieldToolsUsed,
}

// ErrUnknownField is returned when a field name does not map to a lead attribute.
var ErrUnknownField = errors.New("lead: unknown field")

// Fields returns the required fields in display order.
func Fields() []Field {
	out := make([]Field, len(requiredFields))
	copy(out, requiredFields)
	return out
}

// ParseField maps a form field name onto a Field.
func ParseField(name string) (Field, error) {
	candidate := Field(strings.TrimSpace(name))
	for _, f := range requiredFields {
		if f == candidate {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// Input is the lead record held by a form. The zero value has every field
// set to the empty string.
type Input struct {
	CompanyName string
	Industry    string
	Website     string
	Goals       string
	Challenges  string
	ToolsUsed   string
}

// Value returns the stored value for f, or "" for unknown fields.
func (in Input) Value(f Field) string {
	switch f {
	case FieldCompanyName:
		return in.CompanyName
	case FieldIndustry:
		return in.Industry
	case FieldWebsite:
		return in.Website
	case FieldGoals:
		return in.Goals
	case FieldChallenges:
		return in.Challenges
	case FieldToolsUsed:
		return in.ToolsUsed
	default:
		return ""
	}
}

// Update returns a copy of prior with only f replaced by value.
func Update(prior Input, f Field, value string) (Input, error) {
	next := prior
	switch f {
	case FieldCompanyName:
		next.CompanyName = value
	case FieldIndustry:
		next.Industry = value
	case FieldWebsite:
		next.Website = value
	case FieldGoals:
		next.Goals = value
	case FieldChallenges:
		next.Challenges = value
	case FieldToolsUsed:
		next.ToolsUsed = value
	default:
		return prior, fmt.Errorf("%w: %q", ErrUnknownField, string(f))
	}
	return next, nil
}

// Filled counts fields whose trimmed value is non-empty.
func (in Input) Filled() int {
	count := 0
	for _, f := range requiredFields {
		if strings.TrimSpace(in.Value(f)) != "" {
			count++
		}
	}
	return count
}

// CompletionPercent reports round(100 * filled / required) as an integer in [0,100].
func CompletionPercent(in Input) int {
	return int(math.Round(float64(in.Filled()) * 100 / float64(len(requiredFields))))
}
