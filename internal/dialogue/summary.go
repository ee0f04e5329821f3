package dialogue

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/therascent/therascent/internal/catalog"
	"github.com/therascent/therascent/internal/models"
)

// yesNo localizes the rendering of boolean preference fields.
var yesNo = map[catalog.Locale][2]string{
	catalog.LocaleEnglish: {"Yes", "No"},
	catalog.LocaleHebrew:  {"כן", "לא"},
}

// summaryField renders one preference field, or "" when it is unset.
type summaryField struct {
	label string
	value func(models.PreferenceRecord, catalog.Locale) string
}

// summaryFields fixes the field order of every synthesized summary. The
// label names resolve through the catalog's preferenceLabels table.
var summaryFields = []summaryField{
	{"mood", func(r models.PreferenceRecord, _ catalog.Locale) string { return r.Mood }},
	{"wantsResearchInfo", func(r models.PreferenceRecord, loc catalog.Locale) string { return renderBool(r.WantsResearchInfo, loc) }},
	{"wantsToExperience", func(r models.PreferenceRecord, loc catalog.Locale) string { return renderBool(r.WantsToExperience, loc) }},
	{"bringsHereToday", func(r models.PreferenceRecord, _ catalog.Locale) string { return r.BringsHereToday }},
	{"treatmentMatters", func(r models.PreferenceRecord, _ catalog.Locale) string {
		return strings.Join(r.TreatmentMatters, ", ")
	}},
	{"touchStyle", func(r models.PreferenceRecord, _ catalog.Locale) string { return r.TouchStyle }},
	{"therapistPreference", func(r models.PreferenceRecord, _ catalog.Locale) string { return r.TherapistPreference }},
	{"sessionLocation", func(r models.PreferenceRecord, _ catalog.Locale) string { return r.SessionLocation }},
	{"locationLive", func(r models.PreferenceRecord, _ catalog.Locale) string { return r.LocationLive }},
	{"preferredTime", func(r models.PreferenceRecord, _ catalog.Locale) string { return r.PreferredTime }},
	{"conversationStyle", func(r models.PreferenceRecord, _ catalog.Locale) string { return r.ConversationStyle }},
	{"additionalNotes", func(r models.PreferenceRecord, _ catalog.Locale) string { return r.AdditionalNotes }},
	{"budget", func(r models.PreferenceRecord, _ catalog.Locale) string { return r.Budget }},
	{"scentPreferences", func(r models.PreferenceRecord, _ catalog.Locale) string { return r.ScentPreferences }},
	{"contactInfo", func(r models.PreferenceRecord, _ catalog.Locale) string { return r.ContactInfo }},
}

// summaryLines renders every populated preference field as a labeled
// markdown line, in the fixed field order. Unset fields are skipped
// entirely; an empty result means there is nothing to summarize yet.
func summaryLines(record models.PreferenceRecord, cat *catalog.Catalog, loc catalog.Locale) []string {
	var lines []string
	for _, f := range summaryFields {
		value := f.value(record, loc)
		if value == "" {
			continue
		}
		label, err := cat.Label(f.label, loc)
		if err != nil {
			slog.Error("Summary label resolution failed", "field", f.label, "locale", loc, "error", err)
			label = f.label
		}
		lines = append(lines, fmt.Sprintf("**%s:** %s", label, value))
	}
	return lines
}

func renderBool(v *bool, loc catalog.Locale) string {
	if v == nil {
		return ""
	}
	words := yesNo[loc]
	if *v {
		return words[0]
	}
	return words[1]
}
