package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/orbitask/internal/forms"
	"github.com/kalambet/orbitask/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store      *storage.Store
	Dispatcher *forms.Dispatcher
}

// NewMCPServer creates an MCP server with all Orbitask tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"orbitask",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("Orbitask: hierarchical notes whose Lua code offers forms you can execute."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_notes",
			mcp.WithDescription("List root notes, or the children of a note when parent_id is given."),
			mcp.WithNumber("parent_id", mcp.Description("Parent note id")),
		),
		mcpListNotes(deps),
	)

	s.AddTool(
		mcp.NewTool("get_note",
			mcp.WithDescription("Get a note with its children and attributes."),
			mcp.WithNumber("id", mcp.Description("Note id"), mcp.Required()),
		),
		mcpGetNote(deps),
	)

	s.AddTool(
		mcp.NewTool("create_note",
			mcp.WithDescription("Create a note, optionally under a parent and attached to a code."),
			mcp.WithString("title", mcp.Description("Note title"), mcp.Required()),
			mcp.WithString("description", mcp.Description("Note body")),
			mcp.WithNumber("parent_id", mcp.Description("Parent note id")),
			mcp.WithString("code_name", mcp.Description("Name of the code driving the note")),
		),
		mcpCreateNote(deps),
	)

	s.AddTool(
		mcp.NewTool("list_forms",
			mcp.WithDescription("List the forms a note currently offers, keyed by action label."),
			mcp.WithNumber("id", mcp.Description("Note id"), mcp.Required()),
		),
		mcpListForms(deps),
	)

	s.AddTool(
		mcp.NewTool("execute_action",
			mcp.WithDescription("Submit one of a note's forms."),
			mcp.WithNumber("id", mcp.Description("Note id"), mcp.Required()),
			mcp.WithString("action_label", mcp.Description("Label of the form to submit"), mcp.Required()),
			mcp.WithString("fields", mcp.Description(`JSON object of field values keyed by the action label, e.g. {"by":"3"}`)),
		),
		mcpExecuteAction(deps),
	)

	s.AddTool(
		mcp.NewTool("set_attribute",
			mcp.WithDescription("Set a string attribute on a note."),
			mcp.WithNumber("id", mcp.Description("Note id"), mcp.Required()),
			mcp.WithString("key", mcp.Description("Attribute key"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Attribute value"), mcp.Required()),
		),
		mcpSetAttribute(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"orbitask://codes",
			"Codes",
			mcp.WithResourceDescription("Registered codes with their capabilities"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCodes(deps),
	)

	return s
}

func mcpListNotes(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var notes []storage.Note
		var err error
		if parent := req.GetInt("parent_id", 0); parent > 0 {
			notes, err = deps.Store.ChildrenOf(ctx, int64(parent))
		} else {
			notes, err = deps.Store.RootNotes(ctx)
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list notes: %v", err)), nil
		}
		if notes == nil {
			notes = []storage.Note{}
		}
		return mcpJSON(notes)
	}
}

func mcpGetNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		view, err := loadNoteView(ctx, deps.Store.Queries, int64(id))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get note %d: %v", id, err)), nil
		}
		return mcpJSON(view)
	}
}

func mcpCreateNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil || strings.TrimSpace(title) == "" {
			return mcpError("title is required"), nil
		}
		n := storage.NewNote{
			Title:       title,
			Description: req.GetString("description", ""),
		}
		if parent := req.GetInt("parent_id", 0); parent > 0 {
			p := int64(parent)
			n.ParentID = &p
		}
		if code := req.GetString("code_name", ""); code != "" {
			n.CodeName = &code
		}

		var id int64
		err = deps.Store.WithTx(ctx, func(q *storage.Queries) error {
			if n.ParentID != nil {
				if _, err := q.GetNote(ctx, *n.ParentID); err != nil {
					return fmt.Errorf("parent note %d: %w", *n.ParentID, err)
				}
			}
			if err := checkCodeName(ctx, q, n.CodeName); err != nil {
				return err
			}
			var err error
			id, err = q.CreateNote(ctx, n)
			return err
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create note: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Created note %d", id)), nil
	}
}

func mcpListForms(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		var found map[string]forms.FormContainer
		err = deps.Store.WithTx(ctx, func(q *storage.Queries) error {
			var err error
			found, err = deps.Dispatcher.Discover(ctx, q, int64(id))
			return err
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list forms: %v", err)), nil
		}
		return mcpJSON(found)
	}
}

func mcpExecuteAction(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		label, err := req.RequireString("action_label")
		if err != nil {
			return mcpError("action_label is required"), nil
		}
		fields, err := decodeFields(req.GetString("fields", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("invalid fields JSON: %v", err)), nil
		}

		var message string
		err = deps.Store.WithTx(ctx, func(q *storage.Queries) error {
			var err error
			message, err = deps.Dispatcher.Execute(ctx, q, int64(id), label, fields)
			return err
		})
		if err != nil {
			return mcpError(fmt.Sprintf("action failed: %v", err)), nil
		}
		return mcpText(message), nil
	}
}

// decodeFields reads a JSON object of form values. Numbers and booleans are
// accepted and turned into their text form.
func decodeFields(raw string) (map[string]string, error) {
	fields := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return fields, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, err
	}
	for k, v := range decoded {
		switch v := v.(type) {
		case string:
			fields[k] = v
		case float64:
			fields[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			fields[k] = strconv.FormatBool(v)
		case nil:
		default:
			return nil, fmt.Errorf("field %q must be a string or number", k)
		}
	}
	return fields, nil
}

func mcpSetAttribute(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		if _, err := deps.Store.GetNote(ctx, int64(id)); err != nil {
			return mcpError(fmt.Sprintf("note %d: %v", id, err)), nil
		}
		if err := deps.Store.SetAttribute(ctx, int64(id), key, value); err != nil {
			return mcpError(fmt.Sprintf("failed to set attribute: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %s on note %d", key, value, id)), nil
	}
}

func mcpResourceCodes(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		names, err := deps.Store.ListCodeNames(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list codes: %w", err)
		}
		views := make([]codeView, 0, len(names))
		for _, name := range names {
			c, err := deps.Store.GetCode(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("failed to load code %q: %w", name, err)
			}
			c.Script = ""
			views = append(views, viewCode(c))
		}

		b, err := json.Marshal(views)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal codes: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
