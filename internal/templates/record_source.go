package templates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/recordstore"
)

// RecordsTable holds one record per template.
const RecordsTable = "playbook_templates"

const fieldTemplateID = "template_id"

// RecordSource reads templates from the record store. Records whose content
// fails validation are reported as errors rather than skipped.
type RecordSource struct {
	store recordstore.Store
}

var _ playbook.TemplateStore = (*RecordSource)(nil)

// NewRecordSource creates a template store over store.
func NewRecordSource(store recordstore.Store) *RecordSource {
	return &RecordSource{store: store}
}

// Get implements playbook.TemplateStore.
func (s *RecordSource) Get(ctx context.Context, id string) (*playbook.Template, error) {
	rec, err := s.store.SelectOne(ctx, RecordsTable, recordstore.Filter{fieldTemplateID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", id, err)
	}
	if rec == nil {
		return nil, &playbook.TemplateNotFoundError{PlaybookID: id}
	}
	return templateFromRecord(rec)
}

// List implements playbook.TemplateStore.
func (s *RecordSource) List(ctx context.Context) ([]*playbook.Template, error) {
	recs, err := s.store.SelectMany(ctx, RecordsTable, nil, recordstore.OrderBy{Field: fieldTemplateID})
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	out := make([]*playbook.Template, 0, len(recs))
	for _, rec := range recs {
		t, err := templateFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Put inserts the template, or replaces the stored record with the same id.
func (s *RecordSource) Put(ctx context.Context, t *playbook.Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	rec, err := templateToRecord(t)
	if err != nil {
		return err
	}

	filter := recordstore.Filter{fieldTemplateID: t.ID}
	existing, err := s.store.SelectOne(ctx, RecordsTable, filter)
	if err != nil {
		return fmt.Errorf("failed to read template %s: %w", t.ID, err)
	}
	if existing == nil {
		if _, err := s.store.Insert(ctx, RecordsTable, rec); err != nil {
			return fmt.Errorf("failed to insert template %s: %w", t.ID, err)
		}
		return nil
	}
	if _, err := s.store.Update(ctx, RecordsTable, recordstore.Filter{recordstore.FieldID: existing.ID()}, rec); err != nil {
		return fmt.Errorf("failed to update template %s: %w", t.ID, err)
	}
	return nil
}

// Seed stores every template from src that the record store does not have yet.
func (s *RecordSource) Seed(ctx context.Context, src playbook.TemplateStore) (int, error) {
	templates, err := src.List(ctx)
	if err != nil {
		return 0, err
	}
	seeded := 0
	for _, t := range templates {
		existing, err := s.store.SelectOne(ctx, RecordsTable, recordstore.Filter{fieldTemplateID: t.ID})
		if err != nil {
			return seeded, fmt.Errorf("failed to read template %s: %w", t.ID, err)
		}
		if existing != nil {
			continue
		}
		if err := s.Put(ctx, t); err != nil {
			return seeded, err
		}
		seeded++
	}
	return seeded, nil
}

// Sync writes every template from src whose stored definition is missing or
// differs, and reports how many records were written.
func (s *RecordSource) Sync(ctx context.Context, src playbook.TemplateStore) (int, error) {
	templates, err := src.List(ctx)
	if err != nil {
		return 0, err
	}
	written := 0
	for _, t := range templates {
		stored, err := s.Get(ctx, t.ID)
		var notFound *playbook.TemplateNotFoundError
		switch {
		case errors.As(err, &notFound):
		case err != nil:
			return written, err
		default:
			same, err := sameDefinition(stored, t)
			if err != nil {
				return written, err
			}
			if same {
				continue
			}
		}
		if err := s.Put(ctx, t); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func sameDefinition(a, b *playbook.Template) (bool, error) {
	left, err := json.Marshal(DefFromTemplate(a))
	if err != nil {
		return false, fmt.Errorf("failed to encode template %s: %w", a.ID, err)
	}
	right, err := json.Marshal(DefFromTemplate(b))
	if err != nil {
		return false, fmt.Errorf("failed to encode template %s: %w", b.ID, err)
	}
	return bytes.Equal(left, right), nil
}

func templateToRecord(t *playbook.Template) (recordstore.Record, error) {
	data, err := json.Marshal(DefFromTemplate(t))
	if err != nil {
		return nil, fmt.Errorf("failed to encode template %s: %w", t.ID, err)
	}
	var rec recordstore.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to encode template %s: %w", t.ID, err)
	}
	return rec, nil
}

func templateFromRecord(rec recordstore.Record) (*playbook.Template, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode template record %s: %w", rec.ID(), err)
	}
	var def TemplateDef
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to decode template record %s: %w", rec.ID(), err)
	}
	t, err := def.ToTemplate()
	if err != nil {
		return nil, fmt.Errorf("invalid template record %s: %w", rec.ID(), err)
	}
	return t, nil
}
