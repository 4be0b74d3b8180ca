package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/clusternode/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

type recorder struct {
	mu   sync.Mutex
	seen []any
}

func (r *recorder) Receive(_ Ref, env Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, env.Message)
}

func (r *recorder) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.seen...)
}

type lifecycleHandler struct {
	events chan string
}

func (h *lifecycleHandler) PreStart(Ref) { h.events <- "pre" }

func (h *lifecycleHandler) Receive(_ Ref, e Envelope) { h.events <- e.Message.(string) }

func (h *lifecycleHandler) PostStop(Ref) { h.events <- "post" }

type deadRequest struct{}

func (deadRequest) DeadLetterReply(Ref) any { return "unavailable" }

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSpawnDeliversInOrder(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)
	sys := NewSystem("test", nil)
	rec := &recorder{}
	ref, err := sys.Spawn("rec", rec)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if ref.Path() != "/test/rec" {
		t.Fatalf("unexpected path: %s", ref.Path())
	}

	want := make([]any, 0, 100)
	for i := 0; i < 100; i++ {
		ref.Tell(i, nil)
		want = append(want, i)
	}
	if err := Sync(ctx, ref); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if diff := cmp.Diff(want, rec.snapshot()); diff != "" {
		t.Fatalf("delivery order mismatch (-want +got):\n%s", diff)
	}
	if err := sys.Terminate(ctx); err != nil {
		t.Fatalf("terminate: %v", err)
	}
}

func TestSpawnRejectsDuplicateNameAndNilHandler(t *testing.T) {
	testlog.Start(t)
	sys := NewSystem("test", nil)
	t.Cleanup(func() { _ = sys.Terminate(context.Background()) })

	if _, err := sys.Spawn("a", &recorder{}); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if _, err := sys.Spawn("a", &recorder{}); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
	if _, err := sys.Spawn("b", nil); !errors.Is(err, ErrNilHandler) {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
	if _, err := sys.Spawn("a/b", &recorder{}); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	anon, err := sys.Spawn("", &recorder{})
	if err != nil {
		t.Fatalf("anonymous spawn: %v", err)
	}
	if anon.Path() != "/test/$1" {
		t.Fatalf("unexpected anonymous path: %s", anon.Path())
	}
}

func TestLifecycleHooksAndGracefulStop(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)
	sys := NewSystem("test", nil)
	h := &lifecycleHandler{events: make(chan string, 8)}
	ref, err := sys.Spawn("life", h)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	ref.Tell("one", nil)
	ref.Tell("two", nil)
	if err := sys.GracefulStop(ctx, ref); err != nil {
		t.Fatalf("graceful stop: %v", err)
	}
	close(h.events)

	var got []string
	for e := range h.events {
		got = append(got, e)
	}
	if diff := cmp.Diff([]string{"pre", "one", "two", "post"}, got); diff != "" {
		t.Fatalf("lifecycle mismatch (-want +got):\n%s", diff)
	}
	if _, ok := sys.Lookup("life"); ok {
		t.Fatalf("stopped unit still registered")
	}
}

func TestDeadLettersAreIntercepted(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)
	sys := NewSystem("test", nil)
	var (
		mu   sync.Mutex
		dead []any
	)
	sys.Use(DeadLetterLogger(), InterceptorFunc(func(_ *System, dl DeadLetter) {
		mu.Lock()
		defer mu.Unlock()
		dead = append(dead, dl.Envelope.Message)
	}), DeadRequestReplier())

	target, err := sys.Spawn("target", &recorder{})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	asker := &recorder{}
	askerRef, err := sys.Spawn("asker", asker)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if err := sys.GracefulStop(ctx, target); err != nil {
		t.Fatalf("graceful stop: %v", err)
	}

	target.Tell("late", nil)
	target.Tell(deadRequest{}, askerRef)
	if err := Sync(ctx, askerRef); err != nil {
		t.Fatalf("sync: %v", err)
	}

	mu.Lock()
	gotDead := append([]any(nil), dead...)
	mu.Unlock()
	if len(gotDead) != 2 || gotDead[0] != "late" {
		t.Fatalf("unexpected dead letters: %#v", gotDead)
	}
	if diff := cmp.Diff([]any{"unavailable"}, asker.snapshot()); diff != "" {
		t.Fatalf("dead request reply mismatch (-want +got):\n%s", diff)
	}
	if err := sys.Terminate(ctx); err != nil {
		t.Fatalf("terminate: %v", err)
	}
}

func TestHandlerPanicKeepsUnitAlive(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)
	sys := NewSystem("test", nil)
	rec := &recorder{}
	ref, err := sys.Spawn("fragile", HandlerFunc(func(self Ref, env Envelope) {
		if env.Message == "panic" {
			panic("boom")
		}
		rec.Receive(self, env)
	}))
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	ref.Tell("panic", nil)
	ref.Tell("after", nil)
	if err := Sync(ctx, ref); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if diff := cmp.Diff([]any{"after"}, rec.snapshot()); diff != "" {
		t.Fatalf("unexpected messages (-want +got):\n%s", diff)
	}
	_ = sys.Terminate(ctx)
}

func TestTerminateStopsAllUnitsAndRejectsSpawn(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)
	sys := NewSystem("test", nil)
	refs := make([]Ref, 0, 3)
	for _, name := range []string{"a", "b", "c"} {
		ref, err := sys.Spawn(name, &recorder{})
		if err != nil {
			t.Fatalf("spawn %s: %v", name, err)
		}
		refs = append(refs, ref)
	}
	if err := sys.Terminate(ctx); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	for _, ref := range refs {
		select {
		case <-ref.Done():
		default:
			t.Fatalf("unit %s still running after terminate", ref.Path())
		}
	}
	select {
	case <-sys.Terminated():
	default:
		t.Fatalf("terminated channel not closed")
	}
	if sys.UnitCount() != 0 {
		t.Fatalf("unexpected unit count: %d", sys.UnitCount())
	}
	if _, err := sys.Spawn("late", &recorder{}); !errors.Is(err, ErrSystemTerminated) {
		t.Fatalf("expected ErrSystemTerminated, got %v", err)
	}
}

func TestInterfacedRefUnwraps(t *testing.T) {
	testlog.Start(t)
	sys := NewSystem("test", nil)
	t.Cleanup(func() { _ = sys.Terminate(context.Background()) })
	ref, err := sys.Spawn("x", &recorder{})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if got := Interfaced(ref).Ref(); got != ref {
		t.Fatalf("unwrap mismatch: got=%v want=%v", got, ref)
	}
	if (InterfacedRef{}).Ref() != nil {
		t.Fatalf("zero InterfacedRef must unwrap to nil")
	}
}

type question struct{ text string }

type deadAnswer struct{ target string }

func (q question) DeadLetterReply(target Ref) any {
	return deadAnswer{target: target.Path()}
}

func TestAskRepliesAndAnswersDeadRequests(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)

	sys := NewSystem("ask", nil)
	sys.Use(DeadRequestReplier())
	t.Cleanup(func() { _ = sys.Terminate(context.Background()) })

	echo, err := sys.Spawn("echo", HandlerFunc(func(self Ref, env Envelope) {
		if q, ok := env.Message.(question); ok && env.Sender != nil {
			env.Sender.Tell("re: "+q.text, self)
		}
	}))
	if err != nil {
		t.Fatalf("spawn echo: %v", err)
	}

	got, err := Ask(ctx, echo, question{text: "hi"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got != "re: hi" {
		t.Fatalf("reply = %v, want re: hi", got)
	}

	if err := sys.GracefulStop(ctx, echo); err != nil {
		t.Fatalf("stop echo: %v", err)
	}
	got, err = Ask(ctx, echo, question{text: "anyone?"})
	if err != nil {
		t.Fatalf("ask stopped: %v", err)
	}
	if dead, ok := got.(deadAnswer); !ok || dead.target != "/ask/echo" {
		t.Fatalf("reply = %#v, want dead answer from /ask/echo", got)
	}
}

func TestRefsStayBoundToTheirSystem(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)

	replyPath := HandlerFunc(func(self Ref, env Envelope) {
		if env.Sender != nil {
			env.Sender.Tell(self.Path(), self)
		}
	})
	paths := make([]any, 0, 2)
	for _, name := range []string{"a", "b"} {
		sys := NewSystem(name, nil)
		t.Cleanup(func() { _ = sys.Terminate(context.Background()) })
		ref, err := sys.Spawn("echo", replyPath)
		if err != nil {
			t.Fatalf("spawn in %s: %v", name, err)
		}
		got, err := Ask(ctx, ref, "where")
		if err != nil {
			t.Fatalf("ask %s: %v", name, err)
		}
		paths = append(paths, got)
	}
	if diff := cmp.Diff([]any{"/a/echo", "/b/echo"}, paths); diff != "" {
		t.Fatalf("reply paths mismatch (-want +got):\n%s", diff)
	}
}

func TestAskStopsAtContextDeadline(t *testing.T) {
	testlog.Start(t)
	sys := NewSystem("ask", nil)
	t.Cleanup(func() { _ = sys.Terminate(context.Background()) })
	silent, err := sys.Spawn("silent", &recorder{})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := Ask(ctx, silent, "hello?"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ask err = %v, want deadline exceeded", err)
	}
}
