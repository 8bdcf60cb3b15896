package presentation

import (
	"encoding/json"
	"io"
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// FormatTemplates formats a list of templates as JSON
func (f *Formatter) FormatTemplates(templates []TemplateDTO) error {
	return f.encode(templates)
}

// FormatProgress formats a journey as JSON
func (f *Formatter) FormatProgress(progress ProgressDTO) error {
	return f.encode(progress)
}

// FormatProgressList formats a list of journeys as JSON
func (f *Formatter) FormatProgressList(progress []ProgressDTO) error {
	return f.encode(progress)
}

// FormatStatus formats a step completion status report as JSON
func (f *Formatter) FormatStatus(status StatusDTO) error {
	return f.encode(status)
}

// FormatStepResponses formats an audit trail as JSON
func (f *Formatter) FormatStepResponses(responses []StepResponseDTO) error {
	return f.encode(responses)
}

func (f *Formatter) encode(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
