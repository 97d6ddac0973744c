package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/orbitask/internal/auth"
	"github.com/kalambet/orbitask/internal/config"
	"github.com/kalambet/orbitask/internal/storage"
)

// --- password ---

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Manage the admin password",
}

var passwordSetCmd = &cobra.Command{
	Use:   "set [password]",
	Short: "Set the admin password used to log in",
	Long: `Set the admin password used to log in.

The password is read from the argument, or from the first line of stdin
when no argument is given. Only ASCII letters and digits are accepted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := ""
		if len(args) == 1 {
			password = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("reading password: %w", err)
			}
			password = strings.TrimSpace(line)
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		if err := store.SetPasswordHash(cmd.Context(), hash); err != nil {
			return err
		}
		printSuccess("Admin password updated")
		return nil
	},
}

func init() {
	passwordCmd.AddCommand(passwordSetCmd)
}

// --- codes ---

// codeManifest is one YAML document of a `codes apply` file.
type codeManifest struct {
	Name         string `yaml:"name" json:"name"`
	Capabilities []any  `yaml:"capabilities" json:"capabilities"`
	Script       string `yaml:"script" json:"script"`
	ScriptFile   string `yaml:"script_file" json:"-"`
}

// loadManifests reads every YAML document in path. script_file entries are
// resolved relative to the manifest and inlined into Script.
func loadManifests(path string) ([]codeManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var out []codeManifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var m codeManifest
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if m.Name == "" {
			return nil, fmt.Errorf("%s: code #%d has no name", path, len(out)+1)
		}
		switch {
		case m.Script != "" && m.ScriptFile != "":
			return nil, fmt.Errorf("code %q: set script or script_file, not both", m.Name)
		case m.ScriptFile != "":
			src := m.ScriptFile
			if !filepath.IsAbs(src) {
				src = filepath.Join(filepath.Dir(path), src)
			}
			body, err := os.ReadFile(src)
			if err != nil {
				return nil, fmt.Errorf("code %q: reading script: %w", m.Name, err)
			}
			m.Script = string(body)
		}
		if m.Capabilities == nil {
			m.Capabilities = []any{}
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no codes found", path)
	}
	return out, nil
}

type codeInfo struct {
	Name         string          `json:"name"`
	Capabilities json.RawMessage `json:"capabilities"`
	Script       string          `json:"script"`
}

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "Manage scripted codes",
}

var codesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List codes and their capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/codes")
		if err != nil {
			return err
		}
		var codes []codeInfo
		if err := decodeJSON(resp, &codes); err != nil {
			return err
		}
		if len(codes) == 0 {
			fmt.Fprintln(stdout, "No codes.")
			return nil
		}
		for _, c := range codes {
			fmt.Fprintf(stdout, "  %s  %s\n", colorize(colorBold, c.Name), c.Capabilities)
		}
		return nil
	},
}

var codesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a code including its script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/codes/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var c codeInfo
		if err := decodeJSON(resp, &c); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s %s\n", colorize(colorBold, "Name:"), c.Name)
		fmt.Fprintf(stdout, "%s %s\n", colorize(colorBold, "Capabilities:"), c.Capabilities)
		fmt.Fprintf(stdout, "%s\n%s\n", colorize(colorBold, "Script:"), c.Script)
		return nil
	},
}

var codesApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or update codes from a YAML manifest",
	Long: `Create or update codes from a YAML manifest.

A manifest holds one or more YAML documents:

  name: counter
  capabilities:
    - SysLog
    - GetAttribute: Own
    - SetAttribute: Own
  script_file: counter.lua`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}
		manifests, err := loadManifests(file)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		for _, m := range manifests {
			if err := applyCode(cmd.Context(), client, m); err != nil {
				return err
			}
		}
		return nil
	},
}

func applyCode(ctx context.Context, client *apiClient, m codeManifest) error {
	resp, err := client.post(ctx, "/codes", m)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusConflict {
		resp.Body.Close()
		resp, err = client.put(ctx, "/codes/"+url.PathEscape(m.Name), m)
		if err != nil {
			return err
		}
		var out map[string]any
		if err := decodeJSON(resp, &out); err != nil {
			return fmt.Errorf("updating %s: %w", m.Name, err)
		}
		printSuccess("Updated code %s", m.Name)
		return nil
	}
	var out map[string]any
	if err := decodeJSON(resp, &out); err != nil {
		return fmt.Errorf("creating %s: %w", m.Name, err)
	}
	printSuccess("Created code %s", m.Name)
	return nil
}

var codesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/codes/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var out map[string]any
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Deleted code %s", args[0])
		return nil
	},
}

func init() {
	codesApplyCmd.Flags().StringP("file", "f", "", "YAML manifest to apply")
	codesCmd.AddCommand(codesListCmd, codesShowCmd, codesApplyCmd, codesDeleteCmd)
}

// --- notes ---

type noteInfo struct {
	storage.Note
	Children   []storage.Note      `json:"children"`
	Attributes []storage.Attribute `json:"attributes"`
}

type formInfo struct {
	Title  string `json:"title"`
	Label  string `json:"label"`
	Action struct {
		Label    string `json:"label"`
		Title    string `json:"title"`
		FormType string `json:"form_type"`
	} `json:"action"`
}

func parseNoteID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid note id %q", s)
	}
	return id, nil
}

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Browse, create and act on notes",
}

var notesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List root notes, or the children of --parent",
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetInt64("parent")
		path := "/notes"
		if parent > 0 {
			path += "?parent=" + strconv.FormatInt(parent, 10)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var notes []storage.Note
		if err := decodeJSON(resp, &notes); err != nil {
			return err
		}
		if len(notes) == 0 {
			fmt.Fprintln(stdout, "No notes.")
			return nil
		}
		for _, n := range notes {
			extra := ""
			if n.CodeName != nil {
				extra = *n.CodeName
			}
			printRow(n.ID, n.Title, extra)
		}
		return nil
	},
}

var notesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a note with its attributes and children",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseNoteID(args[0])
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/notes/%d", id))
		if err != nil {
			return err
		}
		var n noteInfo
		if err := decodeJSON(resp, &n); err != nil {
			return err
		}
		if asJSON {
			return printJSON(n)
		}

		fmt.Fprintf(stdout, "%s %s\n", colorize(colorBold, fmt.Sprintf("#%d", n.ID)), n.Title)
		if n.Description != "" {
			fmt.Fprintf(stdout, "\n%s\n", n.Description)
		}
		if n.CodeName != nil {
			fmt.Fprintf(stdout, "\n%s %s\n", colorize(colorBold, "Code:"), *n.CodeName)
		}
		if len(n.Attributes) > 0 {
			fmt.Fprintf(stdout, "\n%s\n", colorize(colorBold, "Attributes:"))
			for _, a := range n.Attributes {
				fmt.Fprintf(stdout, "  %s = %s\n", a.Key, a.Value)
			}
		}
		if len(n.Children) > 0 {
			fmt.Fprintf(stdout, "\n%s\n", colorize(colorBold, "Children:"))
			for _, c := range n.Children {
				printRow(c.ID, c.Title, "")
			}
		}
		return nil
	},
}

var notesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a note",
	Long: `Create a note.

Examples:
  orbitask notes create --title "Push-ups" --code counter
  orbitask notes create --title "Chapter 1" --parent 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		code, _ := cmd.Flags().GetString("code")
		parent, _ := cmd.Flags().GetInt64("parent")
		if strings.TrimSpace(title) == "" {
			return fmt.Errorf("--title is required")
		}

		req := map[string]any{"title": title, "description": description}
		if code != "" {
			req["code_name"] = code
		}
		if parent > 0 {
			req["parent_id"] = parent
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/notes", req)
		if err != nil {
			return err
		}
		var out flashResult
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Created note #%d", out.ID)
		return nil
	},
}

var notesFormsCmd = &cobra.Command{
	Use:   "forms <id>",
	Short: "List the actions a note currently offers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseNoteID(args[0])
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/notes/%d/forms", id))
		if err != nil {
			return err
		}
		// Keyed by the action label that `notes exec` takes.
		var forms map[string]formInfo
		if err := decodeJSON(resp, &forms); err != nil {
			return err
		}
		if len(forms) == 0 {
			fmt.Fprintln(stdout, "No actions available.")
			return nil
		}
		labels := make([]string, 0, len(forms))
		for label := range forms {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			f := forms[label]
			field := ""
			if f.Action.FormType != "Empty" {
				field = fmt.Sprintf("  --field %s=<%s>", f.Action.Label, f.Action.FormType)
			}
			fmt.Fprintf(stdout, "  %s  %s%s\n", colorize(colorBold, label), f.Title, colorize(colorDim, field))
		}
		return nil
	},
}

var notesExecCmd = &cobra.Command{
	Use:   "exec <id> <action>",
	Short: "Run one of a note's actions",
	Long: `Run one of a note's actions.

Examples:
  orbitask notes exec 4 done
  orbitask notes exec 7 increment --field by=3`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseNoteID(args[0])
		if err != nil {
			return err
		}
		fields, _ := cmd.Flags().GetStringToString("field")
		if fields == nil {
			fields = map[string]string{}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), fmt.Sprintf("/notes/%d/execute", id), map[string]any{
			"action_label": args[1],
			"fields":       fields,
		})
		if err != nil {
			return err
		}
		f, err := decodeFlash(resp)
		if err != nil {
			return err
		}
		if f.Status == "error" {
			return errors.New(f.Message)
		}
		printFlash(f)
		return nil
	},
}

var notesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Create a note from a PDF, Markdown or text document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetInt64("parent")
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		fields := map[string]string{}
		if parent > 0 {
			fields["parent_id"] = strconv.FormatInt(parent, 10)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Uploading %s (%d bytes)...", filepath.Base(args[0]), len(data))
		resp, err := client.upload(cmd.Context(), "/notes/import", args[0], data, fields)
		if err != nil {
			return err
		}
		var out flashResult
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Imported as note #%d", out.ID)
		return nil
	},
}

func init() {
	notesListCmd.Flags().Int64("parent", 0, "list the children of this note")
	notesShowCmd.Flags().Bool("json", false, "print the raw JSON")
	notesCreateCmd.Flags().String("title", "", "note title (required)")
	notesCreateCmd.Flags().String("description", "", "note description")
	notesCreateCmd.Flags().String("code", "", "name of the code driving the note")
	notesCreateCmd.Flags().Int64("parent", 0, "parent note id")
	notesExecCmd.Flags().StringToString("field", nil, "form field value, as key=value")
	notesImportCmd.Flags().Int64("parent", 0, "parent note id")
	notesCmd.AddCommand(notesListCmd, notesShowCmd, notesCreateCmd, notesFormsCmd, notesExecCmd, notesImportCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		sort.Slice(keys, func(i, j int) bool { return keys[i].Key < keys[j].Key })
		for _, k := range keys {
			fmt.Fprintf(stdout, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "$"+k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd)
}
