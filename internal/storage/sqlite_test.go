package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

var ctx = context.Background()

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_states_board_position", "idx_notes_parent", "idx_notes_board_state", "idx_logs_note_created"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestCodeForNote(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateCode(ctx, Code{Name: "counter", Capabilities: `["SysLog"]`, Script: "-- lua"}); err != nil {
		t.Fatalf("CreateCode: %v", err)
	}
	withCode, err := s.CreateNote(ctx, NewNote{Title: "scripted", CodeName: ptr("counter")})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	plain, err := s.CreateNote(ctx, NewNote{Title: "plain"})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	c, err := s.CodeForNote(ctx, withCode)
	if err != nil {
		t.Fatalf("CodeForNote: %v", err)
	}
	if c.Name != "counter" || c.Capabilities != `["SysLog"]` {
		t.Errorf("CodeForNote = %+v", c)
	}

	if _, err := s.CodeForNote(ctx, plain); !errors.Is(err, ErrNotFound) {
		t.Errorf("CodeForNote(plain) error = %v, want ErrNotFound", err)
	}
}

func TestUpsertCode(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertCode(ctx, Code{Name: "c", Script: "v1"}); err != nil {
		t.Fatalf("UpsertCode: %v", err)
	}
	if err := s.UpsertCode(ctx, Code{Name: "c", Capabilities: `["SysLog"]`, Script: "v2"}); err != nil {
		t.Fatalf("UpsertCode: %v", err)
	}
	c, err := s.GetCode(ctx, "c")
	if err != nil {
		t.Fatalf("GetCode: %v", err)
	}
	if c.Script != "v2" || c.Capabilities != `["SysLog"]` {
		t.Errorf("GetCode = %+v, want updated script and capabilities", c)
	}

	names, err := s.ListCodeNames(ctx)
	if err != nil {
		t.Fatalf("ListCodeNames: %v", err)
	}
	if len(names) != 1 || names[0] != "c" {
		t.Errorf("ListCodeNames = %v", names)
	}
}

func TestNoteTree(t *testing.T) {
	s := openTestStore(t)

	root, err := s.CreateNote(ctx, NewNote{Title: "root", Description: "top"})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	for _, title := range []string{"a", "b"} {
		if _, err := s.CreateNote(ctx, NewNote{Title: title, ParentID: &root}); err != nil {
			t.Fatalf("CreateNote(%s): %v", title, err)
		}
	}

	children, err := s.ChildrenOf(ctx, root)
	if err != nil {
		t.Fatalf("ChildrenOf: %v", err)
	}
	if len(children) != 2 || children[0].Title != "a" || children[1].Title != "b" {
		t.Fatalf("ChildrenOf = %+v", children)
	}
	if children[0].ParentID == nil || *children[0].ParentID != root {
		t.Errorf("child ParentID = %v, want %d", children[0].ParentID, root)
	}

	roots, err := s.RootNotes(ctx)
	if err != nil {
		t.Fatalf("RootNotes: %v", err)
	}
	if len(roots) != 1 || roots[0].ID != root {
		t.Errorf("RootNotes = %+v", roots)
	}

	if err := s.DeleteNote(ctx, root); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	children, err = s.ChildrenOf(ctx, root)
	if err != nil {
		t.Fatalf("ChildrenOf after delete: %v", err)
	}
	if len(children) != 0 {
		t.Errorf("children survived parent deletion: %+v", children)
	}
}

func TestCreateNoteEmptyTitle(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.CreateNote(ctx, NewNote{Title: "   "}); err == nil {
		t.Fatal("expected error for empty title")
	}
}

func TestGetNoteNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetNote(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetNote error = %v, want ErrNotFound", err)
	}
}

func TestAttributesUpsert(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateNote(ctx, NewNote{Title: "n"})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	if _, ok, err := s.GetAttribute(ctx, id, "done"); err != nil || ok {
		t.Fatalf("GetAttribute on empty = ok %v err %v", ok, err)
	}
	if err := s.SetAttribute(ctx, id, "done", "2024-01-01"); err != nil {
		t.Fatalf("SetAttribute: %v", err)
	}
	if err := s.SetAttribute(ctx, id, "done", "2024-02-02"); err != nil {
		t.Fatalf("SetAttribute again: %v", err)
	}
	v, ok, err := s.GetAttribute(ctx, id, "done")
	if err != nil || !ok || v != "2024-02-02" {
		t.Errorf("GetAttribute = %q %v %v, want 2024-02-02", v, ok, err)
	}

	attrs, err := s.ListAttributes(ctx, id)
	if err != nil {
		t.Fatalf("ListAttributes: %v", err)
	}
	if len(attrs) != 1 {
		t.Errorf("ListAttributes = %+v, want 1 entry", attrs)
	}

	if err := s.DeleteAttribute(ctx, id, "done"); err != nil {
		t.Fatalf("DeleteAttribute: %v", err)
	}
	if err := s.DeleteAttribute(ctx, id, "done"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteAttribute error = %v, want ErrNotFound", err)
	}
}

func TestLogs(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateNote(ctx, NewNote{Title: "n"})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if _, err := s.AppendLog(ctx, id, LogInfo, "first", nil); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	if _, err := s.AppendLog(ctx, id, LogError, "second", []byte{1, 2}); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}

	logs, err := s.LogsForNote(ctx, id)
	if err != nil {
		t.Fatalf("LogsForNote: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("LogsForNote returned %d entries, want 2", len(logs))
	}
	if logs[0].Message != "first" || logs[1].Kind != LogError || len(logs[1].Data) != 2 {
		t.Errorf("LogsForNote = %+v", logs)
	}
}

func TestWithTxRollback(t *testing.T) {
	s := openTestStore(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(q *Queries) error {
		if _, err := q.CreateNote(ctx, NewNote{Title: "doomed"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx error = %v, want boom", err)
	}

	roots, err := s.RootNotes(ctx)
	if err != nil {
		t.Fatalf("RootNotes: %v", err)
	}
	if len(roots) != 0 {
		t.Errorf("rolled back note is visible: %+v", roots)
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	s := openTestStore(t)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected the panic to propagate")
			}
		}()
		s.WithTx(ctx, func(q *Queries) error {
			if _, err := q.CreateNote(ctx, NewNote{Title: "doomed"}); err != nil {
				return err
			}
			panic("boom")
		})
	}()

	// The single connection must be free again.
	done := make(chan error, 1)
	go func() {
		_, err := s.CreateNote(ctx, NewNote{Title: "after"})
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("CreateNote after panic: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("store still blocked by the panicked transaction")
	}

	roots, err := s.RootNotes(ctx)
	if err != nil {
		t.Fatalf("RootNotes: %v", err)
	}
	if len(roots) != 1 || roots[0].Title != "after" {
		t.Errorf("roots = %+v, want only the note created after the panic", roots)
	}
}

func TestWithTxCommit(t *testing.T) {
	s := openTestStore(t)

	var id int64
	err := s.WithTx(ctx, func(q *Queries) error {
		var err error
		id, err = q.CreateNote(ctx, NewNote{Title: "kept"})
		return err
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	if _, err := s.GetNote(ctx, id); err != nil {
		t.Errorf("GetNote after commit: %v", err)
	}
}

func TestBoardFromTemplate(t *testing.T) {
	s := openTestStore(t)

	tmpl, err := s.CreateBoard(ctx, "kanban", true, nil)
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	for _, name := range []string{"todo", "doing", "done"} {
		if _, err := s.CreateState(ctx, tmpl, name, name == "done"); err != nil {
			t.Fatalf("CreateState(%s): %v", name, err)
		}
	}

	board, err := s.CreateBoard(ctx, "work", false, &tmpl)
	if err != nil {
		t.Fatalf("CreateBoard from template: %v", err)
	}
	states, err := s.StatesForBoard(ctx, board)
	if err != nil {
		t.Fatalf("StatesForBoard: %v", err)
	}
	if len(states) != 3 {
		t.Fatalf("copied %d states, want 3", len(states))
	}
	if states[0].Name != "todo" || states[2].Name != "done" || !states[2].IsFinished {
		t.Errorf("copied states = %+v", states)
	}

	boards, err := s.ListBoards(ctx, false)
	if err != nil {
		t.Fatalf("ListBoards: %v", err)
	}
	if len(boards) != 1 || boards[0].ID != board {
		t.Errorf("ListBoards(false) = %+v, want only the non-template board", boards)
	}
	all, err := s.ListBoards(ctx, true)
	if err != nil {
		t.Fatalf("ListBoards(true): %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListBoards(true) returned %d boards, want 2", len(all))
	}
}

func TestMoveStateKeepsPositionsDense(t *testing.T) {
	s := openTestStore(t)

	board, err := s.CreateBoard(ctx, "b", false, nil)
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	var ids []int64
	for _, name := range []string{"a", "b", "c", "d"} {
		id, err := s.CreateState(ctx, board, name, false)
		if err != nil {
			t.Fatalf("CreateState: %v", err)
		}
		ids = append(ids, id)
	}

	// Move "d" to the front, then "a" far past the end.
	if err := s.MoveState(ctx, ids[3], 0); err != nil {
		t.Fatalf("MoveState: %v", err)
	}
	if err := s.MoveState(ctx, ids[0], 99); err != nil {
		t.Fatalf("MoveState: %v", err)
	}

	states, err := s.StatesForBoard(ctx, board)
	if err != nil {
		t.Fatalf("StatesForBoard: %v", err)
	}
	want := []string{"d", "b", "c", "a"}
	for i, st := range states {
		if st.Name != want[i] {
			t.Errorf("position %d = %q, want %q", i, st.Name, want[i])
		}
		if st.Position != int64(i) {
			t.Errorf("state %q position = %d, want %d", st.Name, st.Position, i)
		}
	}
}

func TestMoveNoteToState(t *testing.T) {
	s := openTestStore(t)

	board, err := s.CreateBoard(ctx, "b", false, nil)
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	state, err := s.CreateState(ctx, board, "todo", false)
	if err != nil {
		t.Fatalf("CreateState: %v", err)
	}
	note, err := s.CreateNote(ctx, NewNote{Title: "card"})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if err := s.MoveNoteToState(ctx, note, state); err != nil {
		t.Fatalf("MoveNoteToState: %v", err)
	}

	cards, err := s.NotesInState(ctx, board, state)
	if err != nil {
		t.Fatalf("NotesInState: %v", err)
	}
	if len(cards) != 1 || cards[0].ID != note {
		t.Errorf("NotesInState = %+v", cards)
	}
}

func TestTags(t *testing.T) {
	s := openTestStore(t)

	board, err := s.CreateBoard(ctx, "b", false, nil)
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	tag, err := s.CreateTag(ctx, "home")
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if _, err := s.CreateTag(ctx, "home"); err == nil {
		t.Error("expected duplicate tag name to fail")
	}
	if err := s.TagBoard(ctx, board, tag); err != nil {
		t.Fatalf("TagBoard: %v", err)
	}
	if err := s.TagBoard(ctx, board, tag); err != nil {
		t.Fatalf("TagBoard twice: %v", err)
	}

	tags, err := s.TagsForBoard(ctx, board)
	if err != nil {
		t.Fatalf("TagsForBoard: %v", err)
	}
	if len(tags) != 1 || tags[0].Name != "home" {
		t.Errorf("TagsForBoard = %+v", tags)
	}
}

func TestPasswordHash(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.PasswordHash(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("PasswordHash before set: %v, want ErrNotFound", err)
	}
	if err := s.SetPasswordHash(ctx, "h1"); err != nil {
		t.Fatalf("SetPasswordHash: %v", err)
	}
	if err := s.SetPasswordHash(ctx, "h2"); err != nil {
		t.Fatalf("SetPasswordHash: %v", err)
	}
	h, err := s.PasswordHash(ctx)
	if err != nil || h != "h2" {
		t.Errorf("PasswordHash = %q, %v; want h2", h, err)
	}
}
