package blueprint

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func selections(n int) []RecordSelection {
	out := make([]RecordSelection, n)
	for i := range out {
		out[i] = RecordSelection{Source: SourceTrial, RecordID: "T"}
	}
	return out
}

func TestNormalizeRejectsWithFieldName(t *testing.T) {
	cases := []struct {
		name  string
		req   GenerationRequest
		field string
	}{
		{"missing engagement", GenerationRequest{EngagementID: "  "}, "engagementId"},
		{"long tone", GenerationRequest{EngagementID: "E1", ExecutiveTone: strings.Repeat("t", MaxExecutiveToneLen+1)}, "executiveTone"},
		{"long prompt", GenerationRequest{EngagementID: "E1", TailoredPrompt: strings.Repeat("p", MaxTailoredPromptLen+1)}, "tailoredPrompt"},
		{"empty focus entry", GenerationRequest{EngagementID: "E1", Emphasis: &Emphasis{Focus: []string{"security", "  "}}}, "emphasis.focus[1]"},
		{"empty audience entry", GenerationRequest{EngagementID: "E1", Emphasis: &Emphasis{Audiences: []string{""}}}, "emphasis.audiences[0]"},
		{"long outcome entry", GenerationRequest{EngagementID: "E1", Emphasis: &Emphasis{Outcomes: []string{strings.Repeat("o", MaxEmphasisEntryLen+1)}}}, "emphasis.outcomes[0]"},
		{"too many focus entries", GenerationRequest{EngagementID: "E1", Emphasis: &Emphasis{Focus: make([]string, MaxEmphasisEntries+1)}}, "emphasis.focus"},
		{"too many selections", GenerationRequest{EngagementID: "E1", RecordSelections: selections(MaxRecordSelections + 1)}, "recordSelections"},
		{"unknown source", GenerationRequest{EngagementID: "E1", RecordSelections: []RecordSelection{{Source: "crm", RecordID: "C1"}}}, "recordSelections[0].source"},
		{"empty record id", GenerationRequest{EngagementID: "E1", RecordSelections: []RecordSelection{{Source: SourceTrial, RecordID: "T1"}, {Source: SourceReview, RecordID: " "}}}, "recordSelections[1].recordId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Normalize()
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			require.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestNormalizeAcceptsLimitsAndAliases(t *testing.T) {
	req := GenerationRequest{
		EngagementID:     " E1 ",
		ExecutiveTone:    strings.Repeat("t", MaxExecutiveToneLen),
		TailoredPrompt:   strings.Repeat("p", MaxTailoredPromptLen),
		Emphasis:         &Emphasis{Focus: []string{" security "}},
		RecordSelections: append(selections(MaxRecordSelections-1), RecordSelection{Source: "pov", RecordID: " T9 "}),
	}
	require.NoError(t, req.Normalize())
	require.Equal(t, "E1", req.EngagementID)
	require.Equal(t, []string{"security"}, req.Emphasis.Focus)
	last := req.RecordSelections[len(req.RecordSelections)-1]
	require.Equal(t, SourceTrial, last.Source)
	require.Equal(t, "T9", last.RecordID)

	blank := GenerationRequest{EngagementID: "E1", Emphasis: &Emphasis{}}
	require.NoError(t, blank.Normalize())
	require.Nil(t, blank.Emphasis)
}

func TestNonStringEmphasisEntriesDoNotDecode(t *testing.T) {
	var req GenerationRequest
	err := json.Unmarshal([]byte(`{"engagementId":"E1","emphasis":{"focus":["security",7]}}`), &req)
	require.Error(t, err)
}
