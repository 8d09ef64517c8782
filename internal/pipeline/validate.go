package pipeline

import (
	"fmt"
	"strings"

	"github.com/glowus/planpress/models"
)

// Validation message codes.
const (
	CodeCharLimit         = "char_limit_exceeded"
	CodeMissingSubsection = "missing_subsection"
	CodeUnresolvedFact    = "unresolved_fact"
)

// Validate is a pure function over a section's content and constraints. It
// returns an ordered list of findings, most severe first: character-limit
// and missing-subsection errors, then one warning per unresolved placeholder
// in content order. Identical input always yields identical output.
func Validate(sec models.Section) []models.ValidationMessage {
	var errs, warns []models.ValidationMessage

	chars := len([]rune(sec.Content))
	if sec.MaxCharLimit > 0 && chars > sec.MaxCharLimit {
		errs = append(errs, models.ValidationMessage{
			Severity: models.SeverityError,
			Code:     CodeCharLimit,
			Message:  fmt.Sprintf("section %q has %d characters, limit is %d", sec.Key, chars, sec.MaxCharLimit),
		})
	}

	for _, sub := range sec.RequiredSubsections {
		if !strings.Contains(sec.Content, sub) {
			errs = append(errs, models.ValidationMessage{
				Severity: models.SeverityError,
				Code:     CodeMissingSubsection,
				Message:  fmt.Sprintf("section %q is missing required subsection %q", sec.Key, sub),
			})
		}
	}

	for _, m := range ScanMarkers(sec.Content) {
		warns = append(warns, models.ValidationMessage{
			Severity: models.SeverityWarning,
			Code:     CodeUnresolvedFact,
			Message:  fmt.Sprintf("unresolved fact: %s", m.Text),
		})
	}

	return append(errs, warns...)
}

// StatusFor rolls an ordered message list up into a section validation
// status.
func StatusFor(msgs []models.ValidationMessage) models.ValidationStatus {
	status := models.ValidationValid
	for _, m := range msgs {
		switch m.Severity {
		case models.SeverityError:
			return models.ValidationInvalid
		case models.SeverityWarning:
			status = models.ValidationWarning
		}
	}
	return status
}

// Apply validates a section in place: recomputes the character count,
// refreshes the placeholder list and stores ordered messages plus the
// rolled-up status.
func Apply(sec *models.Section) {
	sec.CharCount = len([]rune(sec.Content))
	sec.Placeholders = nil
	for _, m := range ScanMarkers(sec.Content) {
		sec.Placeholders = append(sec.Placeholders, models.Placeholder{
			Hash:     MarkerHash(sec.Key, m.Text),
			Text:     m.Text,
			Question: questionText(sec.Title, m.Text),
		})
	}
	sec.ValidationMessages = Validate(*sec)
	sec.ValidationStatus = StatusFor(sec.ValidationMessages)
}
