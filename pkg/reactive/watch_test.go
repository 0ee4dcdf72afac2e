package reactive

import (
	"reflect"
	"testing"

	"github.com/vango-dev/viewstate/pkg/scheduler"
)

type watchCall struct {
	value, old any
}

func TestWatchRefCoalescesWrites(t *testing.T) {
	sched := scheduler.New()
	rt := NewRuntime(sched)
	count := NewRef(rt, 1)

	var calls []watchCall
	rt.Watch(count, func(v, old any, _ OnCleanup) {
		calls = append(calls, watchCall{v, old})
	})

	count.Set(2)
	count.Set(3)
	if len(calls) != 0 {
		t.Fatal("callback ran before the flush")
	}
	sched.Loop().Drain()

	want := []watchCall{{3, 1}}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestWatchSkipsUnchangedValue(t *testing.T) {
	sched := scheduler.New()
	rt := NewRuntime(sched)
	count := NewRef(rt, 1)

	calls := 0
	rt.Watch(count, func(any, any, OnCleanup) { calls++ })

	count.Set(2)
	count.Set(1)
	sched.Loop().Drain()
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestWatchImmediateAndOnce(t *testing.T) {
	sched := scheduler.New()
	rt := NewRuntime(sched)
	count := NewRef(rt, 1)

	var calls []watchCall
	rt.Watch(count, func(v, old any, _ OnCleanup) {
		calls = append(calls, watchCall{v, old})
	}, Immediate(), Once())

	count.Set(2)
	sched.Loop().Drain()

	want := []watchCall{{1, nil}}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestWatchProxyIsDeep(t *testing.T) {
	sched := scheduler.New()
	rt := NewRuntime(sched)
	state := rt.Reactive(map[string]any{"a": map[string]any{"b": map[string]any{"c": 1}}})
	leaf := state.Child("a").Child("b")

	calls := 0
	rt.Watch(state, func(v, _ any, _ OnCleanup) {
		calls++
		if v != any(state) {
			t.Errorf("value = %v, want the watched proxy", v)
		}
	})

	leaf.Set("c", 2)
	sched.Loop().Drain()
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWatchDeepTraverse(t *testing.T) {
	sched := scheduler.New()
	rt := NewRuntime(sched)
	state := rt.Reactive(map[string]any{"a": map[string]any{"list": []any{map[string]any{"x": 1}}}})

	shallowCalls, deepCalls := 0, 0
	getter := func() any { return state.Child("a") }
	rt.Watch(getter, func(any, any, OnCleanup) { shallowCalls++ })
	rt.Watch(getter, func(any, any, OnCleanup) { deepCalls++ }, WithDeepStrategy(DeepTraverse))

	item := state.Child("a").Child("list").At(0).(*Proxy)
	item.Set("x", 2)
	sched.Loop().Drain()

	if shallowCalls != 0 {
		t.Errorf("shallow watcher fired on a nested write")
	}
	if deepCalls != 1 {
		t.Errorf("deep watcher calls = %d, want 1", deepCalls)
	}
}

func TestWatchCleanup(t *testing.T) {
	sched := scheduler.New()
	rt := NewRuntime(sched)
	count := NewRef(rt, 0)

	var events []string
	stop := rt.Watch(count, func(v, _ any, onCleanup OnCleanup) {
		events = append(events, "run")
		onCleanup(func() { panic("cleanup boom") })
		onCleanup(func() { events = append(events, "cleanup") })
	})

	count.Set(1)
	sched.Loop().Drain()
	count.Set(2)
	sched.Loop().Drain()
	stop()
	stop()

	want := []string{"run", "cleanup", "run", "cleanup"}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}

	count.Set(3)
	sched.Loop().Drain()
	if len(events) != len(want) {
		t.Error("stopped watcher fired")
	}
}

func TestWatchComputedSource(t *testing.T) {
	sched := scheduler.New()
	rt := NewRuntime(sched)
	state := rt.Reactive(map[string]any{"first": "ada", "last": "lovelace"})
	full := NewComputed(rt, func() string {
		return state.Get("first").(string) + " " + state.Get("last").(string)
	})

	var got []any
	rt.Watch(full, func(v, _ any, _ OnCleanup) { got = append(got, v) })

	rt.Batch(func() {
		state.Set("first", "grace")
		state.Set("last", "hopper")
	})
	sched.Loop().Drain()

	if !reflect.DeepEqual(got, []any{"grace hopper"}) {
		t.Errorf("got %v", got)
	}
}

func TestWatchEffect(t *testing.T) {
	sched := scheduler.New()
	rt := NewRuntime(sched)
	state := rt.Reactive(map[string]any{"n": 1})

	var events []any
	stop := rt.WatchEffect(func(onCleanup OnCleanup) {
		n := state.Get("n")
		events = append(events, n)
		onCleanup(func() { events = append(events, "cleanup") })
	})

	state.Set("n", 2)
	state.Set("n", 3)
	if len(events) != 1 {
		t.Fatal("watch effect re-ran synchronously")
	}
	sched.Loop().Drain()
	stop()

	want := []any{1, "cleanup", 3, "cleanup"}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestScopeStopsWatchers(t *testing.T) {
	sched := scheduler.New()
	rt := NewRuntime(sched)
	count := NewRef(rt, 0)

	calls := 0
	scope := rt.NewScope()
	scope.Run(func() {
		rt.Watch(count, func(any, any, OnCleanup) { calls++ })
	})
	scope.Dispose()

	count.Set(1)
	sched.Loop().Drain()
	if calls != 0 {
		t.Errorf("watcher in a disposed scope fired")
	}
}

func TestParseDeepStrategy(t *testing.T) {
	if s, ok := ParseDeepStrategy("traverse"); !ok || s != DeepTraverse {
		t.Error("traverse")
	}
	if s, ok := ParseDeepStrategy("version"); !ok || s != DeepVersion {
		t.Error("version")
	}
	if _, ok := ParseDeepStrategy("bogus"); ok {
		t.Error("bogus strategy accepted")
	}
}
