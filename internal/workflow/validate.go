package workflow

import (
	"fmt"
	"strings"

	"github.com/pitabwire/recruitflow/model"
)

// Validation error codes reported in FieldError.Code.
const (
	codeRequired = "REQUIRED"
	codeInvalid  = "INVALID"
)

// ValidateDraft checks a workflow draft and returns a VALIDATION_ERROR
// listing every problem, or nil.
func ValidateDraft(d model.WorkflowDraft) error {
	var details []model.FieldError
	add := func(field, code, format string, args ...any) {
		details = append(details, model.FieldError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(d.Name) == "" {
		add("name", codeRequired, "name is required")
	}
	if !d.Trigger.Type.Valid() {
		add("trigger.type", codeInvalid, "unknown trigger type %q", d.Trigger.Type)
	}

	for i, c := range d.Conditions {
		prefix := fmt.Sprintf("conditions[%d]", i)
		if strings.TrimSpace(c.Field) == "" {
			add(prefix+".field", codeRequired, "condition field is required")
		}
		if !c.Operator.Valid() {
			add(prefix+".operator", codeInvalid, "unknown operator %q", c.Operator)
		}
		if c.Value.IsAbsent() {
			add(prefix+".value", codeRequired, "condition value is required")
		}
	}

	if len(d.Actions) == 0 {
		add("actions", codeRequired, "at least one action is required")
	}
	for i, a := range d.Actions {
		prefix := fmt.Sprintf("actions[%d]", i)
		if !a.Type.Valid() {
			add(prefix+".type", codeInvalid, "unknown action type %q", a.Type)
			continue
		}
		for _, key := range a.Type.RequiredConfig() {
			if strings.TrimSpace(a.Config[key]) == "" {
				add(prefix+".config."+key, codeRequired, "%s requires config %q", a.Type, key)
			}
		}
		if a.Type == model.ActionUpdateStatus {
			if s := model.ApplicationStatus(a.Config[model.ConfigStatus]); s != "" && !s.Valid() {
				add(prefix+".config.status", codeInvalid, "unknown application status %q", s)
			}
		}
		for _, key := range []string{model.ConfigMessage, model.ConfigNote} {
			fields, err := Placeholders(a.Config[key])
			if err != nil {
				add(prefix+".config."+key, codeInvalid, "template has an unclosed placeholder")
				continue
			}
			for _, f := range fields {
				if f == "" {
					add(prefix+".config."+key, codeInvalid, "template has an empty placeholder")
					break
				}
			}
		}
	}

	if len(details) > 0 {
		return model.NewValidationError(details)
	}
	return nil
}
