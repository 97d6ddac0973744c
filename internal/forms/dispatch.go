package forms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/orbitask/internal/script"
	"github.com/kalambet/orbitask/internal/storage"
)

const (
	doneLabel     = "done"
	doneAttribute = "done"
)

var (
	// ErrUnknownAction is returned when the submitted label is not among the
	// note's currently available forms.
	ErrUnknownAction = errors.New("unknown action")

	// ErrExecution is shared with the script runner so callers match a single
	// sentinel for failed actions.
	ErrExecution = script.ErrExecution
)

// Store is what form dispatch needs from storage. *storage.Queries satisfies
// it; pass the Queries of the request's transaction.
type Store interface {
	script.Host
	GetNote(ctx context.Context, id int64) (storage.Note, error)
	CodeForNote(ctx context.Context, noteID int64) (storage.Code, error)
	ChildrenOf(ctx context.Context, parentID int64) ([]storage.Note, error)
	AppendLog(ctx context.Context, noteID int64, kind, message string, data []byte) (int64, error)
}

// Dispatcher discovers and executes the forms of notes.
type Dispatcher struct {
	runner *script.Runner
	logger *slog.Logger
}

func NewDispatcher(runner *script.Runner) *Dispatcher {
	return &Dispatcher{runner: runner, logger: slog.Default()}
}

// Discover returns the forms a note currently offers, keyed by action label.
// A note with code asks the script's "forms" entry point. A note without code
// offers the built-in "done" action while it has no children and no done
// attribute.
func (d *Dispatcher) Discover(ctx context.Context, st Store, noteID int64) (map[string]FormContainer, error) {
	code, hasCode, err := d.lookup(ctx, st, noteID)
	if err != nil {
		return nil, err
	}
	if hasCode {
		forms, err := script.Call[map[string]FormContainer](ctx, d.runner, st, script.Invocation{
			Code:   code,
			Entry:  "forms",
			NoteID: noteID,
		})
		if err != nil {
			return nil, err
		}
		if forms == nil {
			forms = map[string]FormContainer{}
		}
		return forms, nil
	}

	forms := map[string]FormContainer{}
	children, err := st.ChildrenOf(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("getting children of note %d: %w", noteID, err)
	}
	if len(children) > 0 {
		return forms, nil
	}
	_, done, err := st.GetAttribute(ctx, noteID, doneAttribute)
	if err != nil {
		return nil, err
	}
	if done {
		return forms, nil
	}
	forms[doneLabel] = doneForm()
	return forms, nil
}

func doneForm() FormContainer {
	return FormContainer{
		Title: "Mark as done",
		Label: doneLabel,
		Action: Action{
			Label:    doneLabel,
			Title:    "Day it was done",
			FormType: TypeDate,
		},
	}
}

// Execute runs the form labelled label with the submitted fields and returns
// the action's message.
func (d *Dispatcher) Execute(ctx context.Context, st Store, noteID int64, label string, fields map[string]string) (string, error) {
	forms, err := d.Discover(ctx, st, noteID)
	if err != nil {
		return "", fmt.Errorf("getting forms of note %d: %w", noteID, err)
	}
	container, ok := forms[label]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, label)
	}
	value, err := ParseField(container.Action.FormType, fields, container.Action.Label)
	if err != nil {
		return "", err
	}
	return d.ExecuteValue(ctx, st, noteID, container, value)
}

// ExecuteValue runs container with an already parsed value.
func (d *Dispatcher) ExecuteValue(ctx context.Context, st Store, noteID int64, container FormContainer, value Value) (string, error) {
	code, hasCode, err := d.lookup(ctx, st, noteID)
	if err != nil {
		return "", err
	}
	if !hasCode {
		return executeDone(ctx, st, noteID, container.Action, value)
	}

	message, err := script.Call[string](ctx, d.runner, st, script.Invocation{
		Code:   code,
		Entry:  container.Label,
		NoteID: noteID,
		Arg:    value,
	})
	if err != nil {
		return "", err
	}

	audit := fmt.Sprintf("Note %d executed form %q with value %s", noteID, container.Label, value)
	if _, err := st.AppendLog(ctx, noteID, storage.LogInfo, audit, nil); err != nil {
		return "", err
	}
	d.logger.Info("action executed", "note_id", noteID, "code", code.Name, "action", container.Label, "value", value.String())
	return message, nil
}

func executeDone(ctx context.Context, st Store, noteID int64, action Action, value Value) (string, error) {
	if action.Label != doneLabel {
		return "", fmt.Errorf("%w: a note without code can only handle %q, not %q", ErrExecution, doneLabel, action.Label)
	}
	children, err := st.ChildrenOf(ctx, noteID)
	if err != nil {
		return "", fmt.Errorf("getting children of note %d: %w", noteID, err)
	}
	if len(children) > 0 {
		return "", fmt.Errorf("%w: cannot mark note as done while it has children", ErrExecution)
	}
	if value.Type != TypeDate {
		return "", fmt.Errorf("%w: done expects a date, got %s", ErrExecution, value)
	}
	if err := st.SetAttribute(ctx, noteID, doneAttribute, value.Date.Format(DateLayout)); err != nil {
		return "", err
	}
	return "Note marked as done", nil
}

// lookup loads the note's code. hasCode is false for notes without code; a
// missing note is storage.ErrNotFound.
func (d *Dispatcher) lookup(ctx context.Context, st Store, noteID int64) (script.Code, bool, error) {
	if _, err := st.GetNote(ctx, noteID); err != nil {
		return script.Code{}, false, err
	}
	c, err := st.CodeForNote(ctx, noteID)
	if errors.Is(err, storage.ErrNotFound) {
		return script.Code{}, false, nil
	}
	if err != nil {
		return script.Code{}, false, err
	}
	return script.Code{Name: c.Name, Capabilities: c.Capabilities, Script: c.Script}, true, nil
}
