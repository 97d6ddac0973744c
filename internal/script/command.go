package script

import (
	"bytes"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// CommandKind is the tag of a Command.
type CommandKind string

const (
	CmdResult       CommandKind = "Result"
	CmdGetID        CommandKind = "GetId"
	CmdSysLog       CommandKind = "SysLog"
	CmdSetAttribute CommandKind = "SetAttribute"
	CmdGetAttribute CommandKind = "GetAttribute"
	CmdCreateChild  CommandKind = "CreateChild"
)

// AttributeRef addresses one attribute of a note.
type AttributeRef struct {
	ID  int64  `json:"id"`
	Key string `json:"key"`
}

// AttributeWrite sets one attribute of a note.
type AttributeWrite struct {
	ID    int64  `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ChildNote describes a note to create. A nil ParentID means the note the
// script runs for.
type ChildNote struct {
	ParentID    *int64  `json:"parent_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	CodeName    *string `json:"code_name"`
}

// Command is one message a suspended script hands to the host. Exactly the
// payload matching Kind is set.
type Command struct {
	Kind         CommandKind
	Result       json.RawMessage
	SysLog       string
	GetAttribute *AttributeRef
	SetAttribute *AttributeWrite
	CreateChild  *ChildNote
}

// Capability returns the capability kind cmd requires. gated is false for
// commands without host side effects.
func (c Command) Capability() (kind CapabilityKind, gated bool) {
	switch c.Kind {
	case CmdSysLog:
		return CapSysLog, true
	case CmdGetAttribute:
		return CapGetAttribute, true
	case CmdSetAttribute:
		return CapSetAttribute, true
	case CmdCreateChild:
		return CapCreateChild, true
	default:
		return "", false
	}
}

// DecodeCommand parses the wire form of a command: the bare string "GetId"
// or an object with exactly one key naming the command.
func DecodeCommand(raw []byte) (Command, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Command{}, errors.New("empty command")
	}

	if raw[0] == '"' {
		var tag string
		if err := json.Unmarshal(raw, &tag); err != nil {
			return Command{}, err
		}
		if CommandKind(tag) != CmdGetID {
			return Command{}, fmt.Errorf("unknown unit command %q", tag)
		}
		return Command{Kind: CmdGetID}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Command{}, fmt.Errorf("command must be a string or an object: %w", err)
	}
	if len(obj) != 1 {
		return Command{}, fmt.Errorf("command object must have exactly one key, got %d", len(obj))
	}

	var (
		tag     string
		payload json.RawMessage
	)
	for k, v := range obj {
		tag, payload = k, v
	}

	cmd := Command{Kind: CommandKind(tag)}
	switch cmd.Kind {
	case CmdResult:
		cmd.Result = payload
	case CmdSysLog:
		if err := json.Unmarshal(payload, &cmd.SysLog); err != nil {
			return Command{}, fmt.Errorf("SysLog: %w", err)
		}
	case CmdGetAttribute:
		var p struct {
			ID  *int64  `json:"id"`
			Key *string `json:"key"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return Command{}, fmt.Errorf("GetAttribute: %w", err)
		}
		if p.ID == nil || p.Key == nil {
			return Command{}, errors.New("GetAttribute: missing field id or key")
		}
		cmd.GetAttribute = &AttributeRef{ID: *p.ID, Key: *p.Key}
	case CmdSetAttribute:
		var p struct {
			ID    *int64  `json:"id"`
			Key   *string `json:"key"`
			Value *string `json:"value"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return Command{}, fmt.Errorf("SetAttribute: %w", err)
		}
		if p.ID == nil || p.Key == nil || p.Value == nil {
			return Command{}, errors.New("SetAttribute: missing field id, key or value")
		}
		cmd.SetAttribute = &AttributeWrite{ID: *p.ID, Key: *p.Key, Value: *p.Value}
	case CmdCreateChild:
		var child ChildNote
		if err := json.Unmarshal(payload, &child); err != nil {
			return Command{}, fmt.Errorf("CreateChild: %w", err)
		}
		if child.Title == "" {
			return Command{}, errors.New("CreateChild: missing field title")
		}
		cmd.CreateChild = &child
	default:
		return Command{}, fmt.Errorf("unknown command %q", tag)
	}
	return cmd, nil
}

// MarshalJSON encodes cmd in the same wire form DecodeCommand reads.
func (c Command) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CmdGetID:
		return json.Marshal(string(CmdGetID))
	case CmdResult:
		result := c.Result
		if result == nil {
			result = json.RawMessage("null")
		}
		return json.Marshal(map[string]json.RawMessage{string(CmdResult): result})
	case CmdSysLog:
		return json.Marshal(map[string]string{string(CmdSysLog): c.SysLog})
	case CmdGetAttribute:
		return json.Marshal(map[string]*AttributeRef{string(CmdGetAttribute): c.GetAttribute})
	case CmdSetAttribute:
		return json.Marshal(map[string]*AttributeWrite{string(CmdSetAttribute): c.SetAttribute})
	case CmdCreateChild:
		return json.Marshal(map[string]*ChildNote{string(CmdCreateChild): c.CreateChild})
	}
	return nil, fmt.Errorf("unknown command kind %q", c.Kind)
}
