package script

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// CapabilityKind names a class of host-affecting command a code may issue.
type CapabilityKind string

const (
	CapSysLog       CapabilityKind = "SysLog"
	CapGetAttribute CapabilityKind = "GetAttribute"
	CapSetAttribute CapabilityKind = "SetAttribute"
	CapCreateChild  CapabilityKind = "CreateChild"
)

// Range restricts which notes a ranged capability applies to.
type Range string

// RangeOwn limits a capability to the note the script runs for.
const RangeOwn Range = "Own"

// Capability is one entry of a code's capability list. SysLog carries no
// range; every other kind is ranged and defaults to RangeOwn.
//
// On the wire a capability is either a bare kind ("SysLog", "GetAttribute")
// or a single-key object binding a kind to its range ({"GetAttribute":"Own"}).
type Capability struct {
	Kind  CapabilityKind
	Range Range
}

func (c Capability) ranged() bool { return c.Kind != CapSysLog }

func (c Capability) String() string {
	if !c.ranged() {
		return string(c.Kind)
	}
	return fmt.Sprintf("%s(%s)", c.Kind, c.Range)
}

func (c Capability) MarshalJSON() ([]byte, error) {
	if !c.ranged() {
		return json.Marshal(string(c.Kind))
	}
	return json.Marshal(map[string]Range{string(c.Kind): c.Range})
}

func (c *Capability) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var kind string
		if err := json.Unmarshal(data, &kind); err != nil {
			return err
		}
		return c.set(CapabilityKind(kind), RangeOwn)
	}

	var obj map[string]Range
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("capability must be a string or a single-key object: %w", err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("capability object must have exactly one key, got %d", len(obj))
	}
	for kind, r := range obj {
		if CapabilityKind(kind) == CapSysLog {
			return fmt.Errorf("capability %s takes no range", kind)
		}
		return c.set(CapabilityKind(kind), r)
	}
	return nil
}

func (c *Capability) set(kind CapabilityKind, r Range) error {
	switch kind {
	case CapSysLog:
		*c = Capability{Kind: kind}
		return nil
	case CapGetAttribute, CapSetAttribute, CapCreateChild:
	default:
		return fmt.Errorf("unknown capability %q", kind)
	}
	if r != RangeOwn {
		return fmt.Errorf("unknown range %q for capability %s", r, kind)
	}
	*c = Capability{Kind: kind, Range: r}
	return nil
}

// Capabilities is a code's declared allow-list.
type Capabilities []Capability

// ParseCapabilities decodes a capability declaration. An empty declaration
// grants nothing.
func ParseCapabilities(raw string) (Capabilities, error) {
	if strings.TrimSpace(raw) == "" {
		return Capabilities{}, nil
	}
	var caps Capabilities
	if err := json.Unmarshal([]byte(raw), &caps); err != nil {
		return nil, err
	}
	return caps, nil
}

func (cs Capabilities) String() string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Allows reports whether cmd, issued by a script running for noteID, is
// covered by one of the capabilities. Result and GetId are always allowed.
func (cs Capabilities) Allows(cmd Command, noteID int64) bool {
	kind, gated := cmd.Capability()
	if !gated {
		return true
	}
	for _, c := range cs {
		if c.Kind == kind && c.covers(cmd, noteID) {
			return true
		}
	}
	return false
}

func (c Capability) covers(cmd Command, noteID int64) bool {
	if !c.ranged() {
		return true
	}
	// RangeOwn is the only range.
	switch cmd.Kind {
	case CmdGetAttribute:
		return cmd.GetAttribute.ID == noteID
	case CmdSetAttribute:
		return cmd.SetAttribute.ID == noteID
	case CmdCreateChild:
		return cmd.CreateChild.ParentID == nil || *cmd.CreateChild.ParentID == noteID
	}
	return false
}
