// Package recommend selects a therapist profile from the static roster
// based on the visitor's accumulated preferences.
package recommend

import (
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/therascent/therascent/internal/models"
)

// roster is the static therapist catalog. Profiles are immutable; the
// recommender only ever selects from them.
var roster = []models.TherapistProfile{
	{
		ID:            "therapist-1",
		Name:          "Kristin Watson",
		Experience:    "8+ years",
		Availability:  "Available today",
		Specialties:   "Deep tissue, aromatherapy, stress relief",
		Specialty:     "Holistic & Deep Tissue Specialist",
		Rating:        4.9,
		ReviewCount:   127,
		Gender:        models.GenderWoman,
		Price:         "$150",
		Location:      "Therapist's Studio",
		TimeAvailable: []string{"Afternoon"},
	},
	{
		ID:            "therapist-2",
		Name:          "Marcus Johnson",
		Experience:    "12+ years",
		Availability:  "Available tomorrow",
		Specialties:   "Swedish massage, essential oils, relaxation",
		Specialty:     "Swedish & Relaxation Specialist",
		Rating:        4.8,
		ReviewCount:   89,
		Gender:        models.GenderMan,
		Price:         "$200",
		Location:      "Therapist's Studio",
		TimeAvailable: []string{"Morning", "Evening"},
	},
	{
		ID:            "therapist-3",
		Name:          "Elena Rodriguez",
		Experience:    "6+ years",
		Availability:  "Available today",
		Specialties:   "Sports massage, myofascial release",
		Specialty:     "Sports & Injury Recovery",
		Rating:        4.9,
		ReviewCount:   95,
		Gender:        models.GenderWoman,
		Price:         "$140",
		Location:      "Therapist's Studio",
		TimeAvailable: []string{"Evening"},
	},
}

// genderTriggers maps preference-answer substrings (lowercased, both
// locales) onto roster gender tags. Answers that match nothing leave the
// roster unfiltered.
var genderTriggers = []struct {
	substr string
	gender models.TherapistGender
}{
	{"woman", models.GenderWoman},
	{"אישה", models.GenderWoman},
	{"man", models.GenderMan},
	{"גבר", models.GenderMan},
}

// Recommender picks therapist profiles. The random source is injectable
// for deterministic tests.
type Recommender struct {
	pick func(n int) int
}

// New creates a Recommender drawing uniformly at random.
func New() *Recommender {
	return &Recommender{pick: rand.IntN}
}

// NewWithPick creates a Recommender with a custom index picker.
func NewWithPick(pick func(n int) int) *Recommender {
	return &Recommender{pick: pick}
}

// Roster returns a copy of the static therapist roster.
func Roster() []models.TherapistProfile {
	out := make([]models.TherapistProfile, len(roster))
	copy(out, roster)
	return out
}

// Recommend selects one profile: the roster is filtered by the recorded
// therapist-gender preference when one is set, falling back to the full
// roster if the filter empties it, then drawn from uniformly. Each call
// draws independently.
func (r *Recommender) Recommend(record models.PreferenceRecord) models.TherapistProfile {
	candidates := roster
	if gender, ok := preferredGender(record.TherapistPreference); ok {
		filtered := make([]models.TherapistProfile, 0, len(roster))
		for _, t := range roster {
			if t.Gender == gender {
				filtered = append(filtered, t)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}
	chosen := candidates[r.pick(len(candidates))]
	slog.Debug("Recommender selected therapist", "session_id", record.SessionID,
		"therapist", chosen.ID, "preference", record.TherapistPreference)
	return chosen
}

// preferredGender maps a free-form preference answer to a gender tag.
// Note: "woman" is checked before "man" because "woman" contains "man".
func preferredGender(answer string) (models.TherapistGender, bool) {
	lower := strings.ToLower(answer)
	for _, t := range genderTriggers {
		if strings.Contains(lower, t.substr) {
			return t.gender, true
		}
	}
	return "", false
}
