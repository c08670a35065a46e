package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/recruitflow/internal/notify"
	"github.com/pitabwire/recruitflow/internal/store"
	"github.com/pitabwire/recruitflow/model"
)

// Payload keys used to locate the application an action targets.
const (
	FieldApplicationID = "applicationId"
	FieldID            = "id"
)

// Dispatcher executes single actions against the application named by the
// payload.
type Dispatcher struct {
	apps     store.ApplicationStore
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. A nil notifier falls back to logging.
func NewDispatcher(apps store.ApplicationStore, notifier notify.Notifier, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &Dispatcher{
		apps:     apps,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TargetApplicationID returns the application id carried by payload, reading
// applicationId first and falling back to id.
func TargetApplicationID(payload model.Payload) string {
	for _, key := range []string{FieldApplicationID, FieldID} {
		if s, ok := payload.Lookup(key).AsString(); ok && s != "" {
			return s
		}
	}
	return ""
}

// Dispatch runs one action on behalf of workflow wf.
func (d *Dispatcher) Dispatch(ctx context.Context, wf model.Workflow, action model.Action, payload model.Payload) error {
	switch action.Type {
	case model.ActionUpdateStatus:
		return d.updateStatus(ctx, action, payload)
	case model.ActionSendNotification:
		return d.sendNotification(ctx, wf, action, payload)
	case model.ActionAddNote:
		return d.addNote(ctx, action, payload)
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (d *Dispatcher) updateStatus(ctx context.Context, action model.Action, payload model.Payload) error {
	status := model.ApplicationStatus(action.Config[model.ConfigStatus])
	if !status.Valid() {
		return fmt.Errorf("invalid application status %q", status)
	}
	id := TargetApplicationID(payload)
	if id == "" {
		return fmt.Errorf("payload has no application id")
	}
	if _, err := d.apps.UpdateApplication(ctx, id, model.ApplicationPatch{Status: &status}); err != nil {
		return fmt.Errorf("update application %s: %w", id, err)
	}
	return nil
}

// addNote replaces the application's notes with the rendered note.
func (d *Dispatcher) addNote(ctx context.Context, action model.Action, payload model.Payload) error {
	id := TargetApplicationID(payload)
	if id == "" {
		return fmt.Errorf("payload has no application id")
	}
	note := Interpolate(action.Config[model.ConfigNote], payload)
	if _, err := d.apps.UpdateApplication(ctx, id, model.ApplicationPatch{Notes: &note}); err != nil {
		return fmt.Errorf("update application %s: %w", id, err)
	}
	return nil
}

func (d *Dispatcher) sendNotification(ctx context.Context, wf model.Workflow, action model.Action, payload model.Payload) error {
	n := model.Notification{
		ID:            uuid.New().String(),
		WorkflowID:    wf.ID,
		ApplicationID: TargetApplicationID(payload),
		Recipient:     action.Config[model.ConfigRecipient],
		Message:       Interpolate(action.Config[model.ConfigMessage], payload),
		CreatedAt:     d.now(),
	}
	if n.Recipient == "" {
		return fmt.Errorf("notification has no recipient")
	}
	if err := d.notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("deliver notification to %s: %w", n.Recipient, err)
	}
	d.logger.Debug("notification dispatched",
		zap.String("workflow_id", wf.ID),
		zap.String("recipient", n.Recipient),
	)
	return nil
}
