package dialogue

import (
	"log/slog"

	"github.com/therascent/therascent/internal/catalog"
)

// rederive rewrites every catalog-backed transcript message in the given
// locale by resolving its stored keys again. Message identity, sender,
// ordering, timestamps, and attachments are untouched; messages without
// keys (user input, interpolated summaries) keep their original text.
// Running the pass twice for the same locale is a no-op. Caller must hold
// the session lock.
func rederive(s *Session, cat *catalog.Catalog, loc catalog.Locale) {
	for i := range s.Transcript {
		m := &s.Transcript[i]
		if m.ContentKey != "" {
			text, err := cat.Text(m.ContentKey, loc)
			if err != nil {
				slog.Error("Rederive content failed", "session_id", s.ID, "key", m.ContentKey, "error", err)
			} else {
				m.Content = text
			}
		}
		if m.OptionsKey != "" {
			opts, err := cat.Options(m.OptionsKey, loc)
			if err != nil {
				slog.Error("Rederive options failed", "session_id", s.ID, "key", m.OptionsKey, "error", err)
			} else {
				m.Options = opts
			}
		}
		if m.MultiOptionsKey != "" {
			opts, err := cat.Options(m.MultiOptionsKey, loc)
			if err != nil {
				slog.Error("Rederive multi options failed", "session_id", s.ID, "key", m.MultiOptionsKey, "error", err)
			} else {
				m.MultiOptions = opts
			}
		}
	}
}
