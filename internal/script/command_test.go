package script

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeCommand(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Command
	}{
		{"get id", `"GetId"`, Command{Kind: CmdGetID}},
		{"result", `{"Result":{"a":1}}`, Command{Kind: CmdResult, Result: []byte(`{"a":1}`)}},
		{"syslog", `{"SysLog":"hello"}`, Command{Kind: CmdSysLog, SysLog: "hello"}},
		{"get attribute", `{"GetAttribute":{"id":3,"key":"k"}}`,
			Command{Kind: CmdGetAttribute, GetAttribute: &AttributeRef{ID: 3, Key: "k"}}},
		{"set attribute", `{"SetAttribute":{"id":3,"key":"k","value":"v"}}`,
			Command{Kind: CmdSetAttribute, SetAttribute: &AttributeWrite{ID: 3, Key: "k", Value: "v"}}},
		{"create child null parent", `{"CreateChild":{"parent_id":null,"title":"t","description":"d","code_name":null}}`,
			Command{Kind: CmdCreateChild, CreateChild: &ChildNote{Title: "t", Description: "d"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeCommand([]byte(tc.raw))
			require.NoError(t, err)
			require.Equal(t, tc.want.Kind, got.Kind)
			require.Equal(t, tc.want.SysLog, got.SysLog)
			require.Equal(t, tc.want.GetAttribute, got.GetAttribute)
			require.Equal(t, tc.want.SetAttribute, got.SetAttribute)
			require.Equal(t, tc.want.CreateChild, got.CreateChild)
			if tc.want.Result != nil {
				require.JSONEq(t, string(tc.want.Result), string(got.Result))
			}
		})
	}
}

func TestDecodeCommandCreateChildWithParent(t *testing.T) {
	got, err := DecodeCommand([]byte(`{"CreateChild":{"parent_id":7,"title":"t","code_name":"c"}}`))
	require.NoError(t, err)
	require.NotNil(t, got.CreateChild.ParentID)
	require.EqualValues(t, 7, *got.CreateChild.ParentID)
	require.NotNil(t, got.CreateChild.CodeName)
	require.Equal(t, "c", *got.CreateChild.CodeName)
}

func TestDecodeCommandRejects(t *testing.T) {
	for _, raw := range []string{
		``,
		`"Result"`,
		`"Bogus"`,
		`42`,
		`{}`,
		`{"SysLog":"a","Result":1}`,
		`{"Launch":{}}`,
		`{"SysLog":5}`,
		`{"GetAttribute":{"key":"k"}}`,
		`{"SetAttribute":{"id":1,"key":"k"}}`,
		`{"CreateChild":{"description":"no title"}}`,
	} {
		_, err := DecodeCommand([]byte(raw))
		require.Error(t, err, "raw %q", raw)
	}
}

func TestCommandMarshalRoundTrip(t *testing.T) {
	parent := int64(4)
	cmds := []Command{
		{Kind: CmdGetID},
		{Kind: CmdSysLog, SysLog: "x"},
		{Kind: CmdCreateChild, CreateChild: &ChildNote{ParentID: &parent, Title: "t"}},
	}
	for _, cmd := range cmds {
		raw, err := cmd.MarshalJSON()
		require.NoError(t, err)
		got, err := DecodeCommand(raw)
		require.NoError(t, err)
		require.Equal(t, cmd.Kind, got.Kind)
		require.Equal(t, cmd.CreateChild, got.CreateChild)
	}
}
