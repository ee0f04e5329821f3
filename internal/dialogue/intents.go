package dialogue

import "strings"

// globalIntent identifies a keyword rule evaluated before state-specific
// dispatch. Matching is a case-insensitive substring check against the raw
// utterance, so an intent can fire from any state.
type globalIntent string

const (
	intentNone         globalIntent = ""
	intentStartOver    globalIntent = "start_over"
	intentShowSummary  globalIntent = "show_summary"
	intentHumanHelp    globalIntent = "human_help"
	intentIAmTherapist globalIntent = "i_am_therapist"
	intentDiscretion   globalIntent = "discretion"
)

// globalTriggers lists the trigger phrases per global intent, both
// locales. Order matters: the first matching intent wins. The discretion
// list is deliberately typo-tolerant; visitors asking about privacy rarely
// spell it the same way twice.
var globalTriggers = []struct {
	intent   globalIntent
	triggers []string
}{
	{intentStartOver, []string{"start over", "התחל מחדש"}},
	{intentShowSummary, []string{"see my summary", "הצג סיכום"}},
	{intentHumanHelp, []string{"talk to a human", "לדבר עם נציג"}},
	{intentIAmTherapist, []string{"i am a therapist", "אני מטפל"}},
	{intentDiscretion, []string{
		"discrete", "discreet", "descrete", "discrite", "discretion", "diskret",
		"דיסקרטי", "דסקרטי",
	}},
}

// matchGlobal returns the first global intent triggered by the utterance.
func matchGlobal(utterance string) globalIntent {
	lower := strings.ToLower(utterance)
	for _, g := range globalTriggers {
		if containsAny(lower, g.triggers) {
			return g.intent
		}
	}
	return intentNone
}

// bringsHereIntent identifies the branch taken at the brings_here state.
type bringsHereIntent string

const (
	bringsHereMore      bringsHereIntent = "more"
	bringsHereTherapist bringsHereIntent = "therapist"
	bringsHereTrainee   bringsHereIntent = "trainee"
	bringsHereConsult   bringsHereIntent = "consult"
	bringsHereMassage   bringsHereIntent = "massage"
)

// bringsHereTriggers branches the "what brings you here" answer. Checked
// in order; anything unmatched defaults to the massage path.
var bringsHereTriggers = []struct {
	intent   bringsHereIntent
	triggers []string
}{
	{bringsHereMore, []string{"more", "other", "עוד"}},
	{bringsHereTherapist, []string{"therapist", "מטפל"}},
	{bringsHereTrainee, []string{"trainee", "מתמחה"}},
	{bringsHereConsult, []string{"consult", "להתייעץ"}},
}

// matchBringsHere classifies the brings_here answer.
func matchBringsHere(utterance string) bringsHereIntent {
	lower := strings.ToLower(utterance)
	for _, b := range bringsHereTriggers {
		if containsAny(lower, b.triggers) {
			return b.intent
		}
	}
	return bringsHereMassage
}

// Affirmation triggers per question. The research options both contain
// "interested", so that state matches on the distinguishing phrases
// instead of the bare word.
var (
	researchInterestTriggers = []string{"interested in learning", "more information", "yes", "מעוניין ללמוד", "כן"}
	affirmativeTriggers      = []string{"yes", "כן"}
)

// indicatesResearchInterest reports whether the answer opts into the
// research-protocol branch.
func indicatesResearchInterest(utterance string) bool {
	return containsAny(strings.ToLower(utterance), researchInterestTriggers)
}

// isAffirmative reports whether the answer is a yes for the plain yes/no
// questions (experience interest, scent interest).
func isAffirmative(utterance string) bool {
	return containsAny(strings.ToLower(utterance), affirmativeTriggers)
}

func containsAny(lower string, triggers []string) bool {
	for _, t := range triggers {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
