// Package catalog provides the bilingual message catalog for the dialogue
// engine.
//
// Every prompt the assistant emits is addressed by a stable dot-path key
// (e.g. "chat.touchStyleQuestion") that resolves to localized text and,
// where relevant, to an ordered option list. The key set is the contract:
// it must be complete and identical in every locale, which Load verifies
// before the engine ever runs.
package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/therascent/therascent/internal/models"
)

// Locale identifies a supported display language.
type Locale string

const (
	// LocaleEnglish is the default display language.
	LocaleEnglish Locale = "en"
	// LocaleHebrew is the second supported display language.
	LocaleHebrew Locale = "he"
)

//go:embed locales/en.json locales/he.json
var localeFS embed.FS

var localeFiles = map[Locale]string{
	LocaleEnglish: "locales/en.json",
	LocaleHebrew:  "locales/he.json",
}

// Catalog key constants. Load fails fast if any of these is missing from
// any locale, so resolution after a successful Load cannot miss.
const (
	KeyWelcome                = "chat.welcome"
	KeyIntroduction           = "chat.introduction"
	KeyMoodQuestion           = "chat.moodQuestion"
	KeyResearchIntro          = "chat.researchIntro"
	KeyResearchOptions        = "chat.researchOptions"
	KeyResearchSummary        = "chat.researchSummary"
	KeyExperienceQuestion     = "chat.experienceQuestion"
	KeyExperienceOptions      = "chat.experienceOptions"
	KeyExperienceYes          = "chat.experienceYes"
	KeyExperienceNo           = "chat.experienceNo"
	KeyBringsHereQuestion     = "chat.bringsHereQuestion"
	KeyBringsHereOptions      = "chat.bringsHereOptions"
	KeyBringsHereMore         = "chat.bringsHereMore"
	KeyBringsHereOther        = "chat.bringsHereOther"
	KeyUniqueExperience       = "chat.uniqueExperience"
	KeyTreatmentQuestion      = "chat.treatmentMattersQuestion"
	KeyTreatmentOptions       = "chat.treatmentMattersOptions"
	KeyTreatmentMore          = "chat.treatmentMattersMore"
	KeyTouchStyleQuestion     = "chat.touchStyleQuestion"
	KeyTouchStyleOptions      = "chat.touchStyleOptions"
	KeyTherapistPrefQuestion  = "chat.therapistPrefQuestion"
	KeyTherapistPrefOptions   = "chat.therapistPrefOptions"
	KeyLocationQuestion       = "chat.locationQuestion"
	KeyLocationOptions        = "chat.locationOptions"
	KeyTimeQuestion           = "chat.timeQuestion"
	KeyTimeOptions            = "chat.timeOptions"
	KeyLocationLiveQuestion   = "chat.locationLiveQuestion"
	KeyAtmosphereQuestion     = "chat.atmosphereQuestion"
	KeyAtmosphereOptions      = "chat.atmosphereOptions"
	KeyAdditionalNotes        = "chat.additionalNotesQuestion"
	KeyBudgetQuestion         = "chat.budgetQuestion"
	KeyScentIntroQuestion     = "chat.scentIntroQuestion"
	KeyScentOptions           = "chat.scentOptions"
	KeyScentPrefsQuestion     = "chat.scentPrefsQuestion"
	KeyContactQuestion        = "chat.contactQuestion"
	KeyTherapistContact       = "chat.therapistContactQuestion"
	KeyConsultContact         = "chat.consultContact"
	KeyContactValidationError = "chat.contactValidationError"
	KeyContactThankYou        = "chat.contactThankYou"
	KeyContactRepresentative  = "chat.contactRepresentative"
	KeySummaryIntro           = "chat.summaryIntro"
	KeySummaryEmpty           = "chat.summaryEmpty"
	KeyHumanSupport           = "chat.humanSupport"
	KeyDiscretionResponse     = "chat.discretionResponse"
	KeyContinueConversation   = "chat.continueConversation"
	KeyEmptyInputResponse     = "chat.emptyInputResponse"
	KeyErrorGeneral           = "chat.errorGeneral"
	KeyFinalSummaryIntro      = "chat.finalSummaryIntro"
	KeyFinalSummaryHeader     = "chat.finalSummaryHeader"
	KeyAgreementThanks        = "chat.agreementThanks"
	KeyFindingTherapist       = "chat.findingTherapist"
	KeyRecommendationIntro    = "chat.recommendationIntro"
	KeyCoordinateMessage      = "chat.coordinateMessage"
	KeyRepresentativeContact  = "chat.representativeContact"
	KeyRatingQuestion         = "chat.ratingQuestion"
	KeyRatingThanks           = "chat.ratingThanks"
	KeySessionComplete        = "chat.sessionComplete"

	labelPrefix = "preferenceLabels."
)

// compositeSets maps a logical choice-set key to the ordered constituent
// text keys it is assembled from. The member order is part of the catalog
// contract and is identical across locales.
var compositeSets = map[string][]string{
	KeyResearchOptions:   {"interested", "different"},
	KeyExperienceOptions: {"yes", "no"},
	KeyScentOptions:      {"yes", "no"},
	KeyBringsHereOptions: {"therapist", "trainee", "consult", "massage", "more"},
}

// requiredTexts lists every plain-text key the engine emits.
var requiredTexts = []string{
	KeyWelcome, KeyIntroduction, KeyMoodQuestion, KeyResearchIntro,
	KeyResearchSummary, KeyExperienceQuestion, KeyExperienceYes,
	KeyExperienceNo, KeyBringsHereQuestion, KeyBringsHereMore,
	KeyBringsHereOther, KeyUniqueExperience, KeyTreatmentQuestion,
	KeyTreatmentMore, KeyTouchStyleQuestion, KeyTherapistPrefQuestion,
	KeyLocationQuestion, KeyTimeQuestion, KeyLocationLiveQuestion,
	KeyAtmosphereQuestion, KeyAdditionalNotes, KeyBudgetQuestion,
	KeyScentIntroQuestion, KeyScentPrefsQuestion, KeyContactQuestion,
	KeyTherapistContact, KeyConsultContact, KeyContactValidationError,
	KeyContactThankYou, KeyContactRepresentative, KeySummaryIntro,
	KeySummaryEmpty, KeyHumanSupport, KeyDiscretionResponse,
	KeyContinueConversation, KeyEmptyInputResponse, KeyErrorGeneral,
	KeyFinalSummaryIntro, KeyFinalSummaryHeader, KeyAgreementThanks,
	KeyFindingTherapist, KeyRecommendationIntro, KeyCoordinateMessage,
	KeyRepresentativeContact, KeyRatingQuestion, KeyRatingThanks,
	KeySessionComplete,
}

// requiredLists lists every array-valued option key the engine emits.
var requiredLists = []string{
	KeyTreatmentOptions, KeyTouchStyleOptions, KeyTherapistPrefOptions,
	KeyLocationOptions, KeyTimeOptions, KeyAtmosphereOptions,
}

// Catalog holds the flattened key-addressed tables for every locale.
type Catalog struct {
	texts map[Locale]map[string]string
	lists map[Locale]map[string][]string
}

// ParseLocale converts a string to a supported Locale.
func ParseLocale(s string) (Locale, error) {
	switch Locale(s) {
	case LocaleEnglish:
		return LocaleEnglish, nil
	case LocaleHebrew:
		return LocaleHebrew, nil
	default:
		return "", fmt.Errorf("%w: %q", models.ErrUnknownLocale, s)
	}
}

// Locales returns the supported locales in a stable order.
func Locales() []Locale {
	return []Locale{LocaleEnglish, LocaleHebrew}
}

// Load parses the embedded locale files and validates the cross-locale
// contract: identical key sets, identical option-list lengths, and all
// keys the engine depends on present. A missing key in any locale is a
// configuration error, not a runtime fallback.
func Load() (*Catalog, error) {
	c := &Catalog{
		texts: make(map[Locale]map[string]string),
		lists: make(map[Locale]map[string][]string),
	}
	for loc, file := range localeFiles {
		raw, err := localeFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read locale file %s: %w", file, err)
		}
		var tree map[string]interface{}
		if err := json.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("failed to parse locale file %s: %w", file, err)
		}
		texts := make(map[string]string)
		lists := make(map[string][]string)
		if err := flatten("", tree, texts, lists); err != nil {
			return nil, fmt.Errorf("invalid locale file %s: %w", file, err)
		}
		c.texts[loc] = texts
		c.lists[loc] = lists
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	slog.Debug("Catalog loaded", "locales", len(c.texts), "keys", len(c.texts[LocaleEnglish]))
	return c, nil
}

// flatten walks a decoded JSON tree and records dot-path keys for string
// leaves and string-array leaves.
func flatten(prefix string, node map[string]interface{}, texts map[string]string, lists map[string][]string) error {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case string:
			texts[key] = val
		case []interface{}:
			entries := make([]string, 0, len(val))
			for _, item := range val {
				s, ok := item.(string)
				if !ok {
					return fmt.Errorf("key %s: option lists must contain only strings", key)
				}
				entries = append(entries, s)
			}
			lists[key] = entries
		case map[string]interface{}:
			if err := flatten(key, val, texts, lists); err != nil {
				return err
			}
		default:
			return fmt.Errorf("key %s: unsupported value type %T", key, v)
		}
	}
	return nil
}

// validate enforces the catalog contract across all locales.
func (c *Catalog) validate() error {
	for _, loc := range Locales() {
		texts, ok := c.texts[loc]
		if !ok {
			return fmt.Errorf("locale %s not loaded", loc)
		}
		for _, key := range requiredTexts {
			if _, ok := texts[key]; !ok {
				return fmt.Errorf("locale %s: missing required key %s", loc, key)
			}
		}
		for _, key := range requiredLists {
			if _, ok := c.lists[loc][key]; !ok {
				return fmt.Errorf("locale %s: missing required option list %s", loc, key)
			}
		}
		for setKey, members := range compositeSets {
			for _, member := range members {
				if _, ok := texts[setKey+"."+member]; !ok {
					return fmt.Errorf("locale %s: missing option %s.%s", loc, setKey, member)
				}
			}
		}
	}

	// The key sets themselves must match between locales, not just cover
	// the required minimum.
	base := keySet(c.texts[LocaleEnglish], c.lists[LocaleEnglish])
	for _, loc := range Locales() {
		if loc == LocaleEnglish {
			continue
		}
		other := keySet(c.texts[loc], c.lists[loc])
		if len(base) != len(other) {
			return fmt.Errorf("locale %s: key count %d does not match %s key count %d",
				loc, len(other), LocaleEnglish, len(base))
		}
		for i := range base {
			if base[i] != other[i] {
				return fmt.Errorf("locale %s: key set diverges at %q (expected %q)", loc, other[i], base[i])
			}
		}
		for key, list := range c.lists[LocaleEnglish] {
			if got := len(c.lists[loc][key]); got != len(list) {
				return fmt.Errorf("locale %s: option list %s has %d entries, expected %d", loc, key, got, len(list))
			}
		}
	}
	return nil
}

func keySet(texts map[string]string, lists map[string][]string) []string {
	keys := make([]string, 0, len(texts)+len(lists))
	for k := range texts {
		keys = append(keys, k)
	}
	for k := range lists {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Text resolves a plain-text key in the given locale.
func (c *Catalog) Text(key string, loc Locale) (string, error) {
	texts, ok := c.texts[loc]
	if !ok {
		return "", fmt.Errorf("unknown locale %s", loc)
	}
	text, ok := texts[key]
	if !ok {
		return "", fmt.Errorf("locale %s: unknown catalog key %s", loc, key)
	}
	return text, nil
}

// Options resolves an option-list key in the given locale. The key may
// name either a plain array or a composite choice set assembled from
// sub-keys; composite member order is stable across locales.
func (c *Catalog) Options(key string, loc Locale) ([]string, error) {
	lists, ok := c.lists[loc]
	if !ok {
		return nil, fmt.Errorf("unknown locale %s", loc)
	}
	if list, ok := lists[key]; ok {
		out := make([]string, len(list))
		copy(out, list)
		return out, nil
	}
	members, ok := compositeSets[key]
	if !ok {
		return nil, fmt.Errorf("locale %s: unknown option key %s", loc, key)
	}
	out := make([]string, 0, len(members))
	for _, member := range members {
		text, err := c.Text(key+"."+member, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, nil
}

// Label resolves the human-readable summary label for a preference field.
func (c *Catalog) Label(field string, loc Locale) (string, error) {
	return c.Text(labelPrefix+field, loc)
}

// SentinelOption reports whether the given choice text is the sentinel
// "More" entry of an option list in any locale. The sentinel is always the
// final entry of its list.
func (c *Catalog) SentinelOption(listKey, choice string) bool {
	for _, loc := range Locales() {
		list, err := c.Options(listKey, loc)
		if err != nil || len(list) == 0 {
			continue
		}
		if choice == list[len(list)-1] {
			return true
		}
	}
	return false
}
