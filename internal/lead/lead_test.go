package lead

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompletionPercent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input Input
		want  int
	}{
		{name: "empty", input: Input{}, want: 0},
		{name: "one", input: Input{CompanyName: "Acme"}, want: 17},
		{name: "two", input: Input{CompanyName: "Acme", Industry: "SaaS"}, want: 33},
		{name: "three", input: Input{CompanyName: "Acme", Industry: "SaaS", Website: "https://acme.test"}, want: 50},
		{name: "four", input: Input{CompanyName: "Acme", Industry: "SaaS", Website: "x", Goals: "grow"}, want: 67},
		{name: "five", input: Input{CompanyName: "Acme", Industry: "SaaS", Website: "x", Goals: "grow", Challenges: "churn"}, want: 83},
		{name: "all", input: Input{CompanyName: "Acme", Industry: "SaaS", Website: "x", Goals: "grow", Challenges: "churn", ToolsUsed: "HubSpot"}, want: 100},
		{name: "whitespace is blank", input: Input{CompanyName: "   ", Industry: "\t\n", Goals: "grow"}, want: 17},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, CompletionPercent(tc.input))
		})
	}
}

func TestUpdateReplacesOnlyOneField(t *testing.T) {
	t.Parallel()

	prior := Input{
		CompanyName: "Acme",
		Industry:    "SaaS",
		Website:     "https://acme.test",
		Goals:       "expand to EU",
		Challenges:  "long sales cycle",
		ToolsUsed:   "Salesforce",
	}

	for _, f := range Fields() {
		next, err := Update(prior, f, "changed")
		require.NoError(t, err)
		require.Equal(t, "changed", next.Value(f))

		for _, other := range Fields() {
			if other == f {
				continue
			}
			require.Equal(t, prior.Value(other), next.Value(other), "updating %s must not touch %s", f, other)
		}
	}

	require.Equal(t, "Acme", prior.CompanyName, "prior record must stay untouched")
}

func TestUpdateRejectsUnknownField(t *testing.T) {
	t.Parallel()

	prior := Input{CompanyName: "Acme"}
	next, err := Update(prior, Field("jobTitle"), "CTO")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownField))
	require.Equal(t, prior, next)
}

func TestParseField(t *testing.T) {
	t.Parallel()

	f, err := ParseField(" toolsUsed ")
	require.NoError(t, err)
	require.Equal(t, FieldToolsUsed, f)

	_, err = ParseField("tools")
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestFieldsReturnsCopy(t *testing.T) {
	t.Parallel()

	fields := Fields()
	require.Len(t, fields, 6)
	fields[0] = "mutated"
	require.Equal(t, FieldCompanyName, Fields()[0])
}
