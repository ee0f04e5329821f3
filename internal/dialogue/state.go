// Package dialogue implements the guided-conversation state machine.
//
// The engine walks a visitor through a fixed interview, accumulating
// answers into a preference record, validating contact handles, branching
// on prior answers, and terminating in a therapist recommendation plus a
// satisfaction rating. Global keyword rules can pre-empt any state.
package dialogue

// State is the current position of a session in the dialogue.
type State string

// Dialogue states. StateWelcome exists only momentarily: session start
// auto-advances through the welcome and introduction prompts and parks the
// session at StateMood awaiting the first answer.
const (
	StateWelcome               State = "welcome"
	StateMood                  State = "mood"
	StateResearchInterest      State = "research_interest"
	StateExperienceInterest    State = "experience_interest"
	StateBringsHere            State = "brings_here"
	StateBringsHereOther       State = "brings_here_other"
	StateTreatmentMatters      State = "treatment_matters"
	StateTreatmentMattersOther State = "treatment_matters_other"
	StateTouchStyle            State = "touch_style"
	StateTherapistPref         State = "therapist_pref"
	StateLocation              State = "location"
	StateTime                  State = "time"
	StateLocationLive          State = "location_live"
	StateAtmosphere            State = "atmosphere"
	StateAdditionalNotes       State = "additional_notes"
	StateBudget                State = "budget"
	StateScentInterest         State = "scent_interest"
	StateScentPrefs            State = "scent_prefs"
	StateContactExperience     State = "contact_experience"
	StateContactTherapist      State = "contact_therapist"
	StateContactConsult        State = "contact_consult"
	StateContactFinal          State = "contact_final"
	StateAgreement             State = "agreement"
	StateFinalRecommendation   State = "final_recommendation"
	StateRating                State = "rating"
	StateComplete              State = "complete"
)

// IsContactCollection reports whether the state gates its transition on
// contact-handle validation.
func (s State) IsContactCollection() bool {
	switch s {
	case StateContactExperience, StateContactTherapist, StateContactConsult, StateContactFinal:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the dialogue has finished.
func (s State) IsTerminal() bool {
	return s == StateComplete
}
