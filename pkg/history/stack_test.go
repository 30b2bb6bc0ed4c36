package history

import (
	"errors"
	"slices"
	"testing"
)

// counterCmd adds delta to a shared value.
type counterCmd struct {
	value   *int
	delta   int
	failDo  bool
	failUnd bool
}

func (c *counterCmd) Do() error {
	if c.failDo {
		return errors.New("do failed")
	}
	*c.value += c.delta
	return nil
}

func (c *counterCmd) Undo() error {
	if c.failUnd {
		return errors.New("undo failed")
	}
	*c.value -= c.delta
	return nil
}

func (c *counterCmd) Description() string {
	if c.delta < 0 {
		return "Subtract"
	}
	return "Add"
}

func (c *counterCmd) Kind() string { return "counter" }

// execute applies cmd and records it, the way callers use the stack.
func execute(t *testing.T, s *Stack, cmd Command) {
	t.Helper()
	if err := cmd.Do(); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	s.Add(cmd)
}

type menuView struct {
	NopView
	states []MenuState
}

func (v *menuView) UpdateMenu(state MenuState) { v.states = append(v.states, state) }

func (v *menuView) last() MenuState { return v.states[len(v.states)-1] }

type recordedOp struct {
	command, op string
	ok          bool
}

type fakeRecorder struct {
	ops []recordedOp
}

func (r *fakeRecorder) RecordCommand(command, op string, ok bool) {
	r.ops = append(r.ops, recordedOp{command, op, ok})
}

func TestStack_UndoRedo(t *testing.T) {
	value := 0
	view := &menuView{}
	s := NewStack(view)

	execute(t, s, &counterCmd{value: &value, delta: 1})
	execute(t, s, &counterCmd{value: &value, delta: 10})
	if value != 11 {
		t.Fatalf("value = %d, want 11", value)
	}

	if err := s.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if value != 1 {
		t.Errorf("after undo value = %d, want 1", value)
	}
	if !s.CanUndo() || !s.CanRedo() {
		t.Errorf("CanUndo/CanRedo = %v/%v, want true/true", s.CanUndo(), s.CanRedo())
	}

	if err := s.Redo(); err != nil {
		t.Fatalf("Redo() error = %v", err)
	}
	if value != 11 {
		t.Errorf("after redo value = %d, want 11", value)
	}
	if s.CanRedo() {
		t.Error("CanRedo after redo of only undone command")
	}

	if got := view.last(); !got.CanUndo || got.CanRedo || got.Building {
		t.Errorf("menu state = %+v", got)
	}
}

func TestStack_AddClearsRedo(t *testing.T) {
	value := 0
	s := NewStack(nil)

	execute(t, s, &counterCmd{value: &value, delta: 1})
	execute(t, s, &counterCmd{value: &value, delta: 2})
	if err := s.Undo(); err != nil {
		t.Fatal(err)
	}
	execute(t, s, &counterCmd{value: &value, delta: -5})

	if s.CanRedo() {
		t.Error("Add must invalidate redo history")
	}
	if got := s.UndoDescriptions(); !slices.Equal(got, []string{"Add", "Subtract"}) {
		t.Errorf("UndoDescriptions() = %v", got)
	}
	if value != -4 {
		t.Errorf("value = %d, want -4", value)
	}
}

func TestStack_EmptyIsNoop(t *testing.T) {
	view := &menuView{}
	s := NewStack(view)

	if err := s.Undo(); err != nil {
		t.Errorf("Undo() on empty stack error = %v", err)
	}
	if err := s.Redo(); err != nil {
		t.Errorf("Redo() on empty stack error = %v", err)
	}
	if len(view.states) != 0 {
		t.Errorf("no-op undo/redo notified the view %d times", len(view.states))
	}
}

func TestStack_FailureLeavesStacks(t *testing.T) {
	value := 0
	rec := &fakeRecorder{}
	s := NewStack(nil, WithRecorder(rec))

	cmd := &counterCmd{value: &value, delta: 3}
	execute(t, s, cmd)

	cmd.failUnd = true
	if err := s.Undo(); err == nil {
		t.Fatal("expected undo error")
	}
	if value != 3 || !s.CanUndo() || s.CanRedo() {
		t.Errorf("failed undo changed state: value=%d undo=%v redo=%v", value, s.CanUndo(), s.CanRedo())
	}

	cmd.failUnd = false
	if err := s.Undo(); err != nil {
		t.Fatal(err)
	}
	cmd.failDo = true
	if err := s.Redo(); err == nil {
		t.Fatal("expected redo error")
	}
	if value != 0 || s.CanUndo() || !s.CanRedo() {
		t.Errorf("failed redo changed state: value=%d undo=%v redo=%v", value, s.CanUndo(), s.CanRedo())
	}

	want := []recordedOp{
		{"counter", "do", true},
		{"counter", "undo", false},
		{"counter", "undo", true},
		{"counter", "redo", false},
	}
	if !slices.Equal(rec.ops, want) {
		t.Errorf("recorded ops = %v, want %v", rec.ops, want)
	}
}

func TestStack_SetBuilding(t *testing.T) {
	view := &menuView{}
	s := NewStack(view)

	s.SetBuilding(true)
	s.SetBuilding(true)
	if len(view.states) != 1 {
		t.Errorf("repeated SetBuilding notified %d times, want 1", len(view.states))
	}
	if !view.last().Building || !s.MenuState().Building {
		t.Error("building flag not reported")
	}

	s.SetBuilding(false)
	if view.last().Building {
		t.Error("building flag not cleared")
	}
}

func TestStack_Clear(t *testing.T) {
	value := 0
	view := &menuView{}
	s := NewStack(view)

	execute(t, s, &counterCmd{value: &value, delta: 1})
	execute(t, s, &counterCmd{value: &value, delta: 1})
	if err := s.Undo(); err != nil {
		t.Fatal(err)
	}

	s.Clear()
	if s.CanUndo() || s.CanRedo() {
		t.Error("Clear left history behind")
	}
	if value != 1 {
		t.Errorf("Clear invoked commands: value = %d", value)
	}
	if got := view.last(); got.CanUndo || got.CanRedo {
		t.Errorf("menu state after Clear = %+v", got)
	}
}

func TestCommandName(t *testing.T) {
	if got := commandName(&counterCmd{}); got != "counter" {
		t.Errorf("commandName() = %q, want counter", got)
	}
	if got := commandName(plainCmd{}); got != "history.plainCmd" {
		t.Errorf("commandName() = %q, want type name", got)
	}
}

type plainCmd struct{}

func (plainCmd) Do() error           { return nil }
func (plainCmd) Undo() error         { return nil }
func (plainCmd) Description() string { return "plain" }
