package blueprint

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxExecutiveToneLen  = 180
	MaxTailoredPromptLen = 800
	MaxEmphasisEntries   = 12
	MaxEmphasisEntryLen  = 160
)

// Normalize trims the request and resolves source aliases, returning the
// first validation failure.
func (r *GenerationRequest) Normalize() error {
	r.EngagementID = strings.TrimSpace(r.EngagementID)
	if r.EngagementID == "" {
		return invalid("engagementId", "is required")
	}
	r.ExecutiveTone = strings.TrimSpace(r.ExecutiveTone)
	if n := utf8.RuneCountInString(r.ExecutiveTone); n > MaxExecutiveToneLen {
		return invalid("executiveTone", "must be at most %d characters, got %d", MaxExecutiveToneLen, n)
	}
	r.TailoredPrompt = strings.TrimSpace(r.TailoredPrompt)
	if n := utf8.RuneCountInString(r.TailoredPrompt); n > MaxTailoredPromptLen {
		return invalid("tailoredPrompt", "must be at most %d characters, got %d", MaxTailoredPromptLen, n)
	}
	if r.Emphasis != nil {
		for _, list := range []struct {
			name   string
			values *[]string
		}{
			{"emphasis.focus", &r.Emphasis.Focus},
			{"emphasis.audiences", &r.Emphasis.Audiences},
			{"emphasis.outcomes", &r.Emphasis.Outcomes},
		} {
			if err := normalizeStrings(list.name, list.values); err != nil {
				return err
			}
		}
		if r.Emphasis.Empty() {
			r.Emphasis = nil
		}
	}
	if len(r.RecordSelections) > MaxRecordSelections {
		return invalid("recordSelections", "at most %d selections are allowed, got %d", MaxRecordSelections, len(r.RecordSelections))
	}
	for i := range r.RecordSelections {
		sel := &r.RecordSelections[i]
		field := fmt.Sprintf("recordSelections[%d]", i)
		src, err := ParseSource(string(sel.Source))
		if err != nil {
			return invalid(field+".source", "must be one of engagement, trial, review, health")
		}
		sel.Source = src
		sel.RecordID = strings.TrimSpace(sel.RecordID)
		if sel.RecordID == "" {
			return invalid(field+".recordId", "is required")
		}
		sel.DisplayName = strings.TrimSpace(sel.DisplayName)
	}
	return nil
}

func normalizeStrings(field string, values *[]string) error {
	if len(*values) > MaxEmphasisEntries {
		return invalid(field, "at most %d entries are allowed", MaxEmphasisEntries)
	}
	out := make([]string, 0, len(*values))
	for i, v := range *values {
		v = strings.TrimSpace(v)
		if v == "" {
			return invalid(fmt.Sprintf("%s[%d]", field, i), "must be a non-empty string")
		}
		if utf8.RuneCountInString(v) > MaxEmphasisEntryLen {
			return invalid(fmt.Sprintf("%s[%d]", field, i), "must be at most %d characters", MaxEmphasisEntryLen)
		}
		out = append(out, v)
	}
	*values = out
	return nil
}
