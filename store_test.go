package statestore

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
)

// call records one listener invocation.
type call struct {
	newState State[string]
	oldState State[string]
}

// recorder collects invocations for a single listener.
type recorder struct {
	calls []call
}

func (r *recorder) listen(newState, oldState State[string]) {
	r.calls = append(r.calls, call{newState: newState, oldState: oldState})
}

func newTestStore(t *testing.T, state State[string]) *Store[string] {
	t.Helper()
	s, err := New(state, nil, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustSubscribe(t *testing.T, s *Store[string], l Listener[string], sel Selector[string]) *Subscription[string] {
	t.Helper()
	sub, err := s.Subscribe(l, sel)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	return sub
}

func TestNew_Empty(t *testing.T) {
	s := newTestStore(t, nil)

	if s.State() != nil {
		t.Errorf("State() = %v, want nil", s.State())
	}
	if s.Data() != nil {
		t.Errorf("Data() = %v, want nil", s.Data())
	}
	if s.ID() == "" {
		t.Error("ID() is empty")
	}
	if s.ListenerCount() != 0 {
		t.Errorf("ListenerCount() = %d, want 0", s.ListenerCount())
	}
}

func TestNew_InitialValuesAreCopied(t *testing.T) {
	state := State[string]{"a": map[string]any{"x": 1}}
	data := Data{"foo": 1}

	s, err := New(state, data)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	state["b"] = 2
	state["a"].(map[string]any)["y"] = 2
	data["bar"] = 2

	want := State[string]{"a": map[string]any{"x": 1}}
	if !reflect.DeepEqual(s.State(), want) {
		t.Errorf("State() = %v, want %v", s.State(), want)
	}
	if !reflect.DeepEqual(s.Data(), Data{"foo": 1}) {
		t.Errorf("Data() = %v, want %v", s.Data(), Data{"foo": 1})
	}
}

func TestStore_IDStable(t *testing.T) {
	s := newTestStore(t, nil)
	id := s.ID()

	s.SetState(State[string]{"a": 1})
	s.SetData(Data{"b": 2})

	if s.ID() != id {
		t.Errorf("ID() = %q after updates, want %q", s.ID(), id)
	}
}

func TestStore_DistinctIDs(t *testing.T) {
	a := newTestStore(t, nil)
	b := newTestStore(t, nil)

	if a.ID() == b.ID() {
		t.Errorf("two stores share ID %q", a.ID())
	}
}

func TestSetState_NoOpPartials(t *testing.T) {
	tests := []struct {
		name    string
		partial State[string]
	}{
		{"nil", nil},
		{"empty", State[string]{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initial := State[string]{"count": 0}
			s := newTestStore(t, initial)
			before := s.State()

			var keyed, all, matched recorder
			mustSubscribe(t, s, keyed.listen, Key("count"))
			mustSubscribe(t, s, all.listen, nil)
			mustSubscribe(t, s, matched.listen, Match(func(string) bool { return true }))

			s.SetState(tt.partial)

			if n := len(keyed.calls) + len(all.calls) + len(matched.calls); n != 0 {
				t.Errorf("listeners called %d times, want 0", n)
			}
			if !reflect.DeepEqual(s.State(), initial) {
				t.Errorf("State() = %v, want %v", s.State(), initial)
			}
			if reflect.ValueOf(s.State()).Pointer() != reflect.ValueOf(before).Pointer() {
				t.Error("State() was replaced by a no-op update")
			}
		})
	}
}

func TestSetState_NoOpOnUnsetState(t *testing.T) {
	s := newTestStore(t, nil)

	s.SetState(State[string]{})

	if s.State() != nil {
		t.Errorf("State() = %v, want nil", s.State())
	}
}

func TestSetState_FirstWriteOnUnsetState(t *testing.T) {
	s := newTestStore(t, nil)
	var r recorder
	mustSubscribe(t, s, r.listen, Key("a"))

	s.SetState(State[string]{"a": 1})

	if len(r.calls) != 1 {
		t.Fatalf("listener called %d times, want 1", len(r.calls))
	}
	if r.calls[0].oldState != nil {
		t.Errorf("oldState = %v, want nil", r.calls[0].oldState)
	}
	if !reflect.DeepEqual(r.calls[0].newState, State[string]{"a": 1}) {
		t.Errorf("newState = %v, want %v", r.calls[0].newState, State[string]{"a": 1})
	}
}

func TestSetState_Scenario_KeyAndAll(t *testing.T) {
	s := newTestStore(t, State[string]{"count": 0, "name": "a"})
	var l1, l2 recorder
	mustSubscribe(t, s, l1.listen, Key("count"))
	mustSubscribe(t, s, l2.listen, nil)

	s.SetState(State[string]{"count": 1})

	wantNew := State[string]{"count": 1, "name": "a"}
	wantOld := State[string]{"count": 0, "name": "a"}

	for name, r := range map[string]*recorder{"L1": &l1, "L2": &l2} {
		if len(r.calls) != 1 {
			t.Fatalf("%s called %d times, want 1", name, len(r.calls))
		}
		if !reflect.DeepEqual(r.calls[0].newState, wantNew) {
			t.Errorf("%s newState = %v, want %v", name, r.calls[0].newState, wantNew)
		}
		if !reflect.DeepEqual(r.calls[0].oldState, wantOld) {
			t.Errorf("%s oldState = %v, want %v", name, r.calls[0].oldState, wantOld)
		}
	}

	if s.State()["count"] != 1 {
		t.Errorf("State()[count] = %v, want 1", s.State()["count"])
	}
}

func TestSetState_Scenario_PredicateOncePerUpdate(t *testing.T) {
	s := newTestStore(t, State[string]{"count": 0, "name": "a"})
	var l3 recorder
	mustSubscribe(t, s, l3.listen, Match(func(key string) bool {
		return key == "count" || key == "name"
	}))

	s.SetState(State[string]{"count": 2, "name": "b"})

	if len(l3.calls) != 1 {
		t.Errorf("predicate listener called %d times, want 1", len(l3.calls))
	}
}

func TestSetState_KeyIsolation(t *testing.T) {
	keys := []string{"a", "b", "c"}

	for _, k1 := range keys {
		for _, k2 := range keys {
			if k1 == k2 {
				continue
			}
			t.Run(k1+"/"+k2, func(t *testing.T) {
				s := newTestStore(t, State[string]{"a": 0, "b": 0, "c": 0})
				var r recorder
				mustSubscribe(t, s, r.listen, Key(k1))

				s.SetState(State[string]{k2: 1})

				if len(r.calls) != 0 {
					t.Errorf("listener on %q called %d times after update of %q, want 0", k1, len(r.calls), k2)
				}
			})
		}
	}
}

func TestSetState_UnchangedKeyDoesNotFire(t *testing.T) {
	s := newTestStore(t, State[string]{"count": 1})
	var keyed, matched recorder
	mustSubscribe(t, s, keyed.listen, Key("count"))
	mustSubscribe(t, s, matched.listen, Match(func(string) bool { return true }))

	s.SetState(State[string]{"count": 1})

	if len(keyed.calls) != 0 {
		t.Errorf("key listener called %d times, want 0", len(keyed.calls))
	}
	if len(matched.calls) != 0 {
		t.Errorf("predicate listener called %d times, want 0", len(matched.calls))
	}
}

func TestSetState_AllFiresWithoutChange(t *testing.T) {
	s := newTestStore(t, State[string]{"count": 1})
	var all recorder
	mustSubscribe(t, s, all.listen, All[string]())

	s.SetState(State[string]{"count": 1})
	s.SetState(State[string]{"count": 1})

	if len(all.calls) != 2 {
		t.Errorf("ALL listener called %d times, want 2", len(all.calls))
	}
}

func TestSetState_NilSelectorIsAll(t *testing.T) {
	s := newTestStore(t, nil)
	var r recorder
	mustSubscribe(t, s, r.listen, nil)

	s.SetState(State[string]{"x": 1})
	s.SetState(State[string]{"y": 1})

	if len(r.calls) != 2 {
		t.Errorf("listener called %d times, want 2", len(r.calls))
	}
}

func TestSetState_AllSentinelDoesNotCollideWithEmptyKey(t *testing.T) {
	s := newTestStore(t, State[string]{"": 0, "x": 0})
	var empty, all recorder
	mustSubscribe(t, s, empty.listen, Key(""))
	mustSubscribe(t, s, all.listen, All[string]())

	s.SetState(State[string]{"x": 1})

	if len(empty.calls) != 0 {
		t.Errorf("listener on empty key called %d times, want 0", len(empty.calls))
	}
	if len(all.calls) != 1 {
		t.Errorf("ALL listener called %d times, want 1", len(all.calls))
	}
}

func TestSetState_DeepMerge(t *testing.T) {
	s := newTestStore(t, nil)

	s.SetState(State[string]{"a": map[string]any{"x": 1}})
	s.SetState(State[string]{"a": map[string]any{"y": 2}})

	want := map[string]any{"x": 1, "y": 2}
	if !reflect.DeepEqual(s.State()["a"], want) {
		t.Errorf("State()[a] = %v, want %v", s.State()["a"], want)
	}
}

func TestSetState_NestedValueCountsAsChanged(t *testing.T) {
	// nested values are compared by identity, and the store holds its own
	// copies, so a structurally equal nested map still reports a change
	s := newTestStore(t, State[string]{"a": map[string]any{"x": 1}})
	var r recorder
	mustSubscribe(t, s, r.listen, Key("a"))

	s.SetState(State[string]{"a": map[string]any{"x": 1}})

	if len(r.calls) != 1 {
		t.Errorf("listener called %d times, want 1", len(r.calls))
	}
}

func TestSetState_OldStateUntouched(t *testing.T) {
	s := newTestStore(t, State[string]{"a": map[string]any{"x": 1}, "tags": []any{"t1"}})
	var r recorder
	mustSubscribe(t, s, r.listen, nil)

	s.SetState(State[string]{"a": map[string]any{"y": 2}, "tags": []any{"t2"}})

	if len(r.calls) != 1 {
		t.Fatalf("listener called %d times, want 1", len(r.calls))
	}
	wantOld := State[string]{"a": map[string]any{"x": 1}, "tags": []any{"t1"}}
	if !reflect.DeepEqual(r.calls[0].oldState, wantOld) {
		t.Errorf("oldState = %v, want %v", r.calls[0].oldState, wantOld)
	}
	wantNew := State[string]{"a": map[string]any{"x": 1, "y": 2}, "tags": []any{"t1", "t2"}}
	if !reflect.DeepEqual(r.calls[0].newState, wantNew) {
		t.Errorf("newState = %v, want %v", r.calls[0].newState, wantNew)
	}
}

func TestSetState_PartialNotRetained(t *testing.T) {
	s := newTestStore(t, nil)
	nested := map[string]any{"x": 1}

	s.SetState(State[string]{"a": nested})
	nested["x"] = 99

	if got := s.State()["a"].(map[string]any)["x"]; got != 1 {
		t.Errorf("State()[a][x] = %v, want 1", got)
	}
}

func TestSetState_NotificationOrder(t *testing.T) {
	s := newTestStore(t, State[string]{"a": 0, "b": 0})
	var order []string
	add := func(name string) Listener[string] {
		return func(_, _ State[string]) { order = append(order, name) }
	}

	mustSubscribe(t, s, add("pred-b"), Match(func(k string) bool { return k == "b" }))
	mustSubscribe(t, s, add("all-1"), nil)
	mustSubscribe(t, s, add("b-1"), Key("b"))
	mustSubscribe(t, s, add("pred-any"), Match(func(string) bool { return true }))
	mustSubscribe(t, s, add("a-1"), Key("a"))
	mustSubscribe(t, s, add("a-2"), Key("a"))
	mustSubscribe(t, s, add("all-2"), All[string]())

	s.SetState(State[string]{"b": 1, "a": 1})

	// keys ascending; predicates queued in first-match order: pred-any
	// matches on "a", pred-b only on "b"
	want := []string{"a-1", "a-2", "b-1", "all-1", "all-2", "pred-any", "pred-b"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("call order = %v, want %v", order, want)
	}
}

func TestSetState_PredicateEvaluatedPerChangedKey(t *testing.T) {
	s := newTestStore(t, State[string]{"a": 0, "b": 0, "c": 0})
	var seen []string
	var r recorder
	mustSubscribe(t, s, r.listen, Match(func(k string) bool {
		seen = append(seen, k)
		return false
	}))

	s.SetState(State[string]{"a": 1, "b": 0, "c": 1})

	if !reflect.DeepEqual(seen, []string{"a", "c"}) {
		t.Errorf("predicate saw %v, want [a c]", seen)
	}
	if len(r.calls) != 0 {
		t.Errorf("listener called %d times, want 0", len(r.calls))
	}
}

func TestSetState_DuplicateRegistrations(t *testing.T) {
	s := newTestStore(t, nil)
	var r recorder

	mustSubscribe(t, s, r.listen, Key("a"))
	mustSubscribe(t, s, r.listen, Key("a"))

	s.SetState(State[string]{"a": 1})

	if len(r.calls) != 2 {
		t.Errorf("listener called %d times, want 2", len(r.calls))
	}
}

func TestSetState_ListenerPanicIsRecovered(t *testing.T) {
	s := newTestStore(t, nil)
	var after recorder

	mustSubscribe(t, s, func(_, _ State[string]) { panic("boom") }, Key("a"))
	mustSubscribe(t, s, func(_, _ State[string]) { panic("boom") }, nil)
	mustSubscribe(t, s, func(_, _ State[string]) { panic("boom") }, Match(func(string) bool { return true }))
	mustSubscribe(t, s, func(_, _ State[string]) {}, Match(func(string) bool { panic("bad predicate") }))
	mustSubscribe(t, s, after.listen, nil)

	s.SetState(State[string]{"a": 1})

	if len(after.calls) != 1 {
		t.Errorf("listener after panics called %d times, want 1", len(after.calls))
	}
	if s.State()["a"] != 1 {
		t.Errorf("State()[a] = %v, want 1", s.State()["a"])
	}
}

func TestSetData_ShallowMerge(t *testing.T) {
	s := newTestStore(t, nil)

	s.SetData(Data{"foo": 1, "nested": map[string]any{"x": 1}})
	s.SetData(Data{"bar": 2, "nested": map[string]any{"y": 2}})

	want := Data{"foo": 1, "bar": 2, "nested": map[string]any{"y": 2}}
	if !reflect.DeepEqual(s.Data(), want) {
		t.Errorf("Data() = %v, want %v", s.Data(), want)
	}
}

func TestSetData_NilPartial(t *testing.T) {
	s := newTestStore(t, nil)

	s.SetData(nil)

	if s.Data() == nil {
		t.Fatal("Data() = nil, want empty map")
	}
	if len(s.Data()) != 0 {
		t.Errorf("len(Data()) = %d, want 0", len(s.Data()))
	}
}

func TestSetData_NeverNotifies(t *testing.T) {
	s := newTestStore(t, State[string]{"foo": 0})
	var keyed, all, matched recorder
	mustSubscribe(t, s, keyed.listen, Key("foo"))
	mustSubscribe(t, s, all.listen, nil)
	mustSubscribe(t, s, matched.listen, Match(func(string) bool { return true }))

	s.SetData(Data{"foo": 1})

	if n := len(keyed.calls) + len(all.calls) + len(matched.calls); n != 0 {
		t.Errorf("listeners called %d times after SetData, want 0", n)
	}
}

func TestSetState_DoesNotTouchData(t *testing.T) {
	s, err := New[string](nil, Data{"foo": 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	s.SetState(State[string]{"foo": 2})

	if !reflect.DeepEqual(s.Data(), Data{"foo": 1}) {
		t.Errorf("Data() = %v, want %v", s.Data(), Data{"foo": 1})
	}
}

func TestSubscribe_NilListener(t *testing.T) {
	s := newTestStore(t, nil)

	sub, err := s.Subscribe(nil, Key("a"))
	if !errors.Is(err, ErrNilListener) {
		t.Errorf("Subscribe(nil) error = %v, want %v", err, ErrNilListener)
	}
	if sub != nil {
		t.Errorf("Subscribe(nil) = %v, want nil", sub)
	}
}

func TestSubscribe_NilPredicate(t *testing.T) {
	s := newTestStore(t, nil)
	var r recorder

	_, err := s.Subscribe(r.listen, Match[string](nil))
	if !errors.Is(err, ErrNilPredicate) {
		t.Errorf("Subscribe() error = %v, want %v", err, ErrNilPredicate)
	}
	if s.ListenerCount() != 0 {
		t.Errorf("ListenerCount() = %d, want 0", s.ListenerCount())
	}
}

func TestSubscribe_TypedKeys(t *testing.T) {
	type field string
	const count field = "count"

	s, err := New(State[field]{count: 0}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var got []any
	if _, err := s.Subscribe(func(newState, _ State[field]) {
		got = append(got, newState[count])
	}, Key(count)); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	s.SetState(State[field]{count: 3})

	if !reflect.DeepEqual(got, []any{3}) {
		t.Errorf("listener saw %v, want [3]", got)
	}
}
