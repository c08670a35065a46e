package workflow

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/recruitflow/model"
)

// Template is a reusable workflow blueprint offered in the catalog.
type Template struct {
	ID                  string `json:"id" yaml:"id"`
	Category            string `json:"category" yaml:"category"`
	model.WorkflowDraft `yaml:",inline"`
}

// templateFile is the on-disk layout of a template catalog.
type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// DefaultTemplates returns the built-in recruiting templates.
func DefaultTemplates() []Template {
	return []Template{
		{
			ID:       "auto-advance-high-scores",
			Category: "screening",
			WorkflowDraft: model.WorkflowDraft{
				Name:        "Auto-advance high scoring applicants",
				Description: "Move applications scoring above 85 into review and tell the recruiter.",
				Trigger:     model.Trigger{Type: model.TriggerAIScoreCalculated},
				Conditions: []model.Condition{
					{Field: "aiScore", Operator: model.OpGreaterThan, Value: model.Number(85)},
				},
				Actions: []model.Action{
					{Type: model.ActionUpdateStatus, Config: map[string]string{model.ConfigStatus: string(model.ApplicationReviewing)}},
					{Type: model.ActionSendNotification, Config: map[string]string{
						model.ConfigRecipient: "recruiter",
						model.ConfigMessage:   "{{candidateName}} scored {{aiScore}} for {{jobTitle}} and moved to review.",
					}},
				},
			},
		},
		{
			ID:       "welcome-applicants",
			Category: "communication",
			WorkflowDraft: model.WorkflowDraft{
				Name:        "Welcome new applicants",
				Description: "Confirm receipt of every new application to the candidate.",
				Trigger:     model.Trigger{Type: model.TriggerApplicationCreated},
				Actions: []model.Action{
					{Type: model.ActionSendNotification, Config: map[string]string{
						model.ConfigRecipient: "candidate",
						model.ConfigMessage:   "Hi {{candidateName}}, thanks for applying to {{jobTitle}}. We will be in touch soon.",
					}},
				},
			},
		},
		{
			ID:       "reject-low-scores",
			Category: "screening",
			WorkflowDraft: model.WorkflowDraft{
				Name:        "Reject low scoring applicants",
				Description: "Reject applications scoring below 40 and record why.",
				Trigger:     model.Trigger{Type: model.TriggerAIScoreCalculated},
				Conditions: []model.Condition{
					{Field: "aiScore", Operator: model.OpLessThan, Value: model.Number(40)},
				},
				Actions: []model.Action{
					{Type: model.ActionUpdateStatus, Config: map[string]string{model.ConfigStatus: string(model.ApplicationRejected)}},
					{Type: model.ActionAddNote, Config: map[string]string{model.ConfigNote: "Automatically rejected with AI score {{aiScore}}."}},
				},
			},
		},
		{
			ID:       "interview-notice",
			Category: "communication",
			WorkflowDraft: model.WorkflowDraft{
				Name:        "Interview scheduling notice",
				Description: "Tell the candidate when their application moves to interviewing.",
				Trigger:     model.Trigger{Type: model.TriggerApplicationStatusChanged},
				Conditions: []model.Condition{
					{Field: "newStatus", Operator: model.OpEquals, Value: model.String(string(model.ApplicationInterviewing))},
				},
				Actions: []model.Action{
					{Type: model.ActionSendNotification, Config: map[string]string{
						model.ConfigRecipient: "candidate",
						model.ConfigMessage:   "Good news {{candidateName}}! We would like to interview you for {{jobTitle}}.",
					}},
				},
			},
		},
	}
}

// LoadTemplates reads a YAML template catalog file.
func LoadTemplates(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates %s: %w", path, err)
	}
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", path, err)
	}
	return f.Templates, nil
}

// Catalog is an immutable set of templates indexed by id.
type Catalog struct {
	byID map[string]Template
}

// NewCatalog validates and indexes templates. Ids must be unique.
func NewCatalog(templates ...Template) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Template, len(templates))}
	for _, t := range templates {
		if t.ID == "" {
			return nil, fmt.Errorf("template %q has no id", t.Name)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", t.ID)
		}
		if err := ValidateDraft(t.WorkflowDraft); err != nil {
			return nil, fmt.Errorf("template %s: %w", t.ID, err)
		}
		c.byID[t.ID] = t
	}
	return c, nil
}

// Get returns the template with the given id.
func (c *Catalog) Get(id string) (Template, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// List returns all templates ordered by category then id.
func (c *Catalog) List() []Template {
	out := make([]Template, 0, len(c.byID))
	for _, t := range c.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].ID < out[j].ID
	})
	return out
}
