package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
)

const (
	DefaultTimeout     = 5 * time.Second
	DefaultMaxCommands = 1000
)

// Code is a named script together with its declared capability list (raw
// JSON, see ParseCapabilities).
type Code struct {
	Name         string
	Capabilities string
	Script       string
}

// Host performs the effects scripts ask for. *storage.Queries satisfies it,
// so a run shares the caller's transaction.
type Host interface {
	GetAttribute(ctx context.Context, noteID int64, key string) (value string, ok bool, err error)
	SetAttribute(ctx context.Context, noteID int64, key, value string) error
	CreateChild(ctx context.Context, parentID int64, title, description string, codeName *string) (int64, error)
}

// Invocation names one entry point of a code, the note it acts for and the
// argument passed to the entry point. Arg must marshal to JSON.
type Invocation struct {
	Code   Code
	Entry  string
	NoteID int64
	Arg    any
}

// Options bounds a Runner. Zero values select the defaults.
type Options struct {
	Timeout     time.Duration
	MaxCommands int
	Logger      *slog.Logger
}

// Runner executes code entry points, mediating every command a script issues
// through the code's capability list.
type Runner struct {
	engine      Engine
	timeout     time.Duration
	maxCommands int
	logger      *slog.Logger
}

func NewRunner(engine Engine, opts Options) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxCommands <= 0 {
		opts.MaxCommands = DefaultMaxCommands
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		engine:      engine,
		timeout:     opts.Timeout,
		maxCommands: opts.MaxCommands,
		logger:      opts.Logger,
	}
}

// Run loads inv.Code in a fresh interpreter, starts inv.Entry with inv.Arg and
// serves the script's commands until it issues Result, whose raw JSON payload
// is returned. Any failure is an *Error.
func (r *Runner) Run(ctx context.Context, host Host, inv Invocation) (json.RawMessage, error) {
	entry := inv.Entry

	caps, err := ParseCapabilities(inv.Code.Capabilities)
	if err != nil {
		return nil, newError(KindConfig, entry, nil, fmt.Errorf("code %q: %w", inv.Code.Name, err))
	}

	arg, err := jsonShape(inv.Arg)
	if err != nil {
		return nil, newError(KindExecution, entry, nil, fmt.Errorf("encoding argument: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prog, err := r.engine.Load(ctx, inv.Code.Script)
	if err != nil {
		return nil, newError(KindLoad, entry, nil, fmt.Errorf("code %q: %w", inv.Code.Name, err))
	}
	defer prog.Close()

	co, err := prog.Start(entry)
	if err != nil {
		return nil, newError(KindLoad, entry, nil, err)
	}

	step, resumeErr := co.Resume(arg)
	for served := 0; ; served++ {
		if resumeErr != nil {
			return nil, r.resumeError(ctx, entry, resumeErr)
		}

		raw, err := json.Marshal(step.Value)
		if err != nil {
			return nil, newError(KindParse, entry, nil, err)
		}
		cmd, decodeErr := DecodeCommand(raw)

		if step.Done {
			if decodeErr == nil && cmd.Kind == CmdResult {
				return cmd.Result, nil
			}
			return nil, newError(KindExecution, entry, nil, errors.New("script did not return"))
		}
		if decodeErr != nil {
			return nil, newError(KindParse, entry, raw, decodeErr)
		}
		if cmd.Kind == CmdResult {
			return cmd.Result, nil
		}

		if served >= r.maxCommands {
			return nil, newError(KindExecution, entry, raw,
				fmt.Errorf("script exceeded %d commands", r.maxCommands))
		}
		if !caps.Allows(cmd, inv.NoteID) {
			return nil, newError(KindUnauthorized, entry, raw,
				fmt.Errorf("%s not permitted by capabilities %s", cmd.Kind, caps))
		}

		answer, err := r.perform(ctx, host, inv, cmd)
		if err != nil {
			return nil, newError(KindExecution, entry, raw, err)
		}
		step, resumeErr = co.Resume(answer)
	}
}

func (r *Runner) resumeError(ctx context.Context, entry string, err error) error {
	if err == nil {
		return newError(KindExecution, entry, nil, errors.New("script did not return"))
	}
	if errors.Is(err, errNotJSON) {
		return newError(KindParse, entry, nil, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return newError(KindExecution, entry, nil, fmt.Errorf("script did not return: %w", ctxErr))
	}
	return newError(KindExecution, entry, nil, fmt.Errorf("script did not return: %w", err))
}

// perform runs the host effect of an authorized command and returns the
// value the script is resumed with.
func (r *Runner) perform(ctx context.Context, host Host, inv Invocation, cmd Command) (any, error) {
	switch cmd.Kind {
	case CmdGetID:
		return inv.NoteID, nil
	case CmdSysLog:
		r.logger.Info("script log",
			"note_id", inv.NoteID,
			"code", inv.Code.Name,
			"entry", inv.Entry,
			"message", cmd.SysLog,
		)
		return nil, nil
	case CmdGetAttribute:
		v, ok, err := host.GetAttribute(ctx, cmd.GetAttribute.ID, cmd.GetAttribute.Key)
		if err != nil || !ok {
			return nil, err
		}
		return v, nil
	case CmdSetAttribute:
		a := cmd.SetAttribute
		return nil, host.SetAttribute(ctx, a.ID, a.Key, a.Value)
	case CmdCreateChild:
		c := cmd.CreateChild
		parent := inv.NoteID
		if c.ParentID != nil {
			parent = *c.ParentID
		}
		id, err := host.CreateChild(ctx, parent, c.Title, c.Description, c.CodeName)
		if err != nil {
			return nil, err
		}
		return id, nil
	}
	return nil, fmt.Errorf("unhandled command %s", cmd.Kind)
}

// Call runs inv and decodes its Result into T.
func Call[T any](ctx context.Context, r *Runner, host Host, inv Invocation) (T, error) {
	var out T
	raw, err := r.Run(ctx, host, inv)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, newError(KindParse, inv.Entry, raw, fmt.Errorf("decoding result: %w", err))
	}
	return out, nil
}

// jsonShape turns v into the nil/bool/float64/string/[]any/map[string]any
// form engines accept.
func jsonShape(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
