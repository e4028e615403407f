package pipeline

import (
	"strings"
	"unicode/utf8"
)

// EntryText returns the text substituted for an entry in a prompt template.
// Values longer than SummaryFallbackLength characters are replaced by their summary,
// or by the value truncated to SummaryFallbackLength characters when no summary exists.
func EntryText(value string, summary *string) string {
	if utf8.RuneCountInString(value) <= SummaryFallbackLength {
		return value
	}
	if summary != nil {
		return *summary
	}
	return truncateRunes(value, SummaryFallbackLength)
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// FillTemplate replaces every {input_name} placeholder with the bound entry's text in one pass,
// so substituted text is never re-scanned for placeholders.
// Placeholders that name no input in the combination are left untouched.
func FillTemplate(template string, combo Combination) string {
	if len(combo) == 0 {
		return template
	}
	pairs := make([]string, 0, len(combo)*2)
	for _, b := range combo {
		pairs = append(pairs, "{"+b.InputName+"}", EntryText(b.Entry.Value, b.Entry.SummaryValue))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
