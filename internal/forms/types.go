package forms

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// FormType is the type of the single input field of an action.
type FormType string

const (
	TypeUInt  FormType = "UInt"
	TypeDate  FormType = "Date"
	TypeEmpty FormType = "Empty"
)

// DateLayout is the only accepted date format.
const DateLayout = "2006-01-02"

// Action is the invokable part of a form: its field label and title and the
// type of value it takes.
type Action struct {
	Label    string   `json:"label"`
	Title    string   `json:"title"`
	FormType FormType `json:"form_type"`
}

// FormContainer describes one user-facing form. Label names the code entry
// point the form runs.
type FormContainer struct {
	Title  string `json:"title"`
	Label  string `json:"label"`
	Action Action `json:"action"`
}

// Value is a parsed field value, tagged by the FormType it was parsed as.
type Value struct {
	Type FormType
	UInt uint64
	Date time.Time
}

func UIntValue(n uint64) Value    { return Value{Type: TypeUInt, UInt: n} }
func DateValue(d time.Time) Value { return Value{Type: TypeDate, Date: d} }
func EmptyValue() Value           { return Value{Type: TypeEmpty} }

func (v Value) String() string {
	switch v.Type {
	case TypeUInt:
		return fmt.Sprintf("UInt(%d)", v.UInt)
	case TypeDate:
		return fmt.Sprintf("Date(%s)", v.Date.Format(DateLayout))
	default:
		return string(v.Type)
	}
}

// MarshalJSON encodes v the way scripts receive it: {"UInt":5},
// {"Date":"2024-01-02"} or "Empty".
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Type {
	case TypeUInt:
		return json.Marshal(map[string]uint64{string(TypeUInt): v.UInt})
	case TypeDate:
		return json.Marshal(map[string]string{string(TypeDate): v.Date.Format(DateLayout)})
	case TypeEmpty:
		return json.Marshal(string(TypeEmpty))
	}
	return nil, fmt.Errorf("unknown value type %q", v.Type)
}
