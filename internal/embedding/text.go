package embedding

import (
	"strings"
	"unicode"

	"github.com/rhysr01/jobping/internal/model"
)

// BuildJobText is the embedding input of a job: title, company, description and location.
func BuildJobText(job *model.Job) string {
	location := strings.TrimSpace(job.Location)
	if location == "" {
		location = joinNonEmpty(", ", job.City, job.Country)
	}
	return joinNonEmpty("\n", job.Title, job.Company, job.Description, location)
}

// BuildProfileText summarises the preference fields that describe what the user is looking for.
func BuildProfileText(prefs *model.UserPreferences) string {
	var lines []string
	add := func(label string, values ...string) {
		if v := joinNonEmpty(", ", values...); v != "" {
			lines = append(lines, label+": "+v)
		}
	}

	add("Target cities", prefs.Cities...)
	add("Career paths", prefs.CareerPaths...)
	add("Roles", prefs.Roles...)
	add("Work environment", prefs.WorkEnvironment)
	add("Entry level", prefs.EntryLevelPreference)
	add("Languages", prefs.Languages...)
	add("Company types", prefs.CompanyTypes...)
	if prefs.VisaSponsorship {
		add("Visa sponsorship", "required")
	}
	return strings.Join(lines, "\n")
}

func joinNonEmpty(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}

// meaningfulChars counts letters and digits.
func meaningfulChars(text string) int {
	n := 0
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// estimateTokens over-approximates the model's token count: the larger of one token per
// word plus one per non-ASCII rune, and one token per four characters.
func estimateTokens(runes []rune) int {
	nonASCII := 0
	words := 0
	inWord := false
	for _, r := range runes {
		if r > unicode.MaxASCII {
			nonASCII++
		}
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}
	byWords := words + nonASCII
	byChars := (len(runes) + 3) / 4
	if byChars > byWords {
		return byChars
	}
	return byWords
}

// truncateToTokens returns the longest prefix whose estimate fits in limit tokens.
func truncateToTokens(text string, limit int) string {
	runes := []rune(text)
	if estimateTokens(runes) <= limit {
		return text
	}

	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if estimateTokens(runes[:mid]) <= limit {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return strings.TrimSpace(string(runes[:lo]))
}
