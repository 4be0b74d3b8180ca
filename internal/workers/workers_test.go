package workers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/clusternode/internal/cluster"
	"github.com/danmuck/clusternode/internal/config"
	"github.com/danmuck/clusternode/internal/runner"
	"github.com/danmuck/clusternode/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

type launched struct {
	runner   *runner.Runner
	contexts []*Context
}

func launch(t *testing.T, texts ...string) *launched {
	t.Helper()
	testlog.Start(t)
	l := &launched{}
	l.runner = runner.New(
		config.Section{}.Set("system.name", "workers-test"),
		Registry(),
		runner.WithContextFactory(func() cluster.NodeContext {
			c := NewContext().(*Context)
			l.contexts = append(l.contexts, c)
			return c
		}),
	)
	t.Cleanup(func() { _ = l.runner.Shutdown(context.Background()) })

	specs := make([]config.NodeSpec, 0, len(texts))
	for _, text := range texts {
		specs = append(specs, config.MustParseNodeSpec(text))
	}
	if err := l.runner.Launch(testContext(t), specs); err != nil {
		t.Fatalf("launch: %v", err)
	}
	return l
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func getJSON(t *testing.T, h http.Handler, method, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s %s: %v body=%s", method, path, err, rr.Body.String())
	}
	return rr.Code, body
}

func TestRegistryRoles(t *testing.T) {
	if diff := cmp.Diff([]string{RoleAdmin, RoleEcho}, Registry().Roles()); diff != "" {
		t.Fatalf("roles mismatch (-want +got):\n%s", diff)
	}
}

func TestEchoBindsOnEveryNode(t *testing.T) {
	l := launch(t,
		`{ port=3001, roles=[] }`,
		`{ port=3002, roles=[ [ "echo", { name = "echo-b" } ] ] }`,
	)
	ctx := testContext(t)

	for i, c := range l.contexts {
		waitFor(t, "echo binding", func() bool { return c.EchoRef() != nil })
		pong, err := Call(ctx, c.EchoRef(), "hello")
		if err != nil {
			t.Fatalf("node %d call: %v", i, err)
		}
		want := Pong{Text: "hello", From: "/workers-test/echo-b"}
		if diff := cmp.Diff(want, pong); diff != "" {
			t.Fatalf("node %d pong mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestEchoStopAnswersDeadPings(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)
	l := launch(t, `{ port=3001, roles=[ "echo" ] }`)
	c := l.contexts[0]
	waitFor(t, "echo binding", func() bool { return c.EchoRef() != nil })
	echo := c.EchoRef()

	sys, _, _ := c.Handles()
	if err := sys.GracefulStop(ctx, echo); err != nil {
		t.Fatalf("stop echo: %v", err)
	}
	pong, err := Call(ctx, echo, "late")
	if err != nil {
		t.Fatalf("call stopped echo: %v", err)
	}
	if !pong.Dead || pong.Text != "late" {
		t.Fatalf("pong = %+v, want dead reply", pong)
	}
	waitFor(t, "echo unbinding", func() bool { return c.EchoRef() == nil })
}

func TestAdminServesNodeState(t *testing.T) {
	l := launch(t,
		`{ port=3001, roles=[ [ "admin", { addr = "127.0.0.1:0" } ], "echo" ] }`,
	)
	ctx := testContext(t)
	c := l.contexts[0]
	waitFor(t, "admin and echo bindings", func() bool {
		return c.EchoRef() != nil && c.AdminRef() != nil
	})

	addr, err := c.AdminRef().Addr(ctx)
	if err != nil {
		t.Fatalf("admin addr: %v", err)
	}
	if addr == "" || addr == "127.0.0.1:0" {
		t.Fatalf("admin addr = %q, want bound port", addr)
	}

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/health status = %d", resp.StatusCode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+"/echo?text=ping", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /echo: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode /echo: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body["text"] != "ping" || body["from"] != "/workers-test/echo" {
		t.Fatalf("/echo = %d %#v", resp.StatusCode, body)
	}
}

func TestAdminRoutes(t *testing.T) {
	l := launch(t, `{ port=3001, roles=[ "admin" ] }`)
	c := l.contexts[0]
	waitFor(t, "admin binding", func() bool { return c.AdminRef() != nil })

	admin := &Admin{nctx: c, origins: normalizeOrigins(nil), appeared: time.Now()}
	admin.router = admin.newRouter()
	admin.RegisterRoutes()
	h := admin.HTTPRouter()

	status, body := getJSON(t, h, http.MethodGet, "/references")
	if status != http.StatusOK {
		t.Fatalf("/references status = %d", status)
	}
	refs, _ := body["references"].(map[string]any)
	if refs[TagAdmin] != "/workers-test/admin" {
		t.Fatalf("/references = %#v", body)
	}
	if body["node"] != "workers-test:3001" {
		t.Fatalf("node id = %v", body["node"])
	}

	// echo is bound but nothing provides it.
	status, body = getJSON(t, h, http.MethodGet, "/ready")
	if status != http.StatusServiceUnavailable || body["ready"] != false {
		t.Fatalf("/ready = %d %#v", status, body)
	}
	missing, _ := body["missing"].([]any)
	if len(missing) != 1 || missing[0] != TagEcho {
		t.Fatalf("/ready missing = %#v", body["missing"])
	}

	status, body = getJSON(t, h, http.MethodPost, "/echo?text=x")
	if status != http.StatusServiceUnavailable || body["error"] != ErrNoEcho.Error() {
		t.Fatalf("/echo = %d %#v", status, body)
	}
}

func TestAdminRefWithoutTarget(t *testing.T) {
	var ref AdminRef
	if _, err := ref.Addr(context.Background()); !errors.Is(err, ErrNoAdmin) {
		t.Fatalf("err = %v, want ErrNoAdmin", err)
	}
}

func TestStopBeforeStart(t *testing.T) {
	echo, err := NewEcho(NewContext(), config.Section{})
	if err != nil {
		t.Fatalf("new echo: %v", err)
	}
	if err := echo.Stop(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("echo stop err = %v, want ErrNotStarted", err)
	}
	admin, err := NewAdmin(NewContext(), config.Section{})
	if err != nil {
		t.Fatalf("new admin: %v", err)
	}
	if err := admin.Stop(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("admin stop err = %v, want ErrNotStarted", err)
	}
}

func TestAdminTokenGuardsEcho(t *testing.T) {
	l := launch(t, `{ port=3001, roles=[ "echo" ] }`)
	c := l.contexts[0]
	waitFor(t, "echo binding", func() bool { return c.EchoRef() != nil })

	w, err := NewAdmin(c, config.Section{}.Set("token", "s3cret"))
	if err != nil {
		t.Fatalf("new admin: %v", err)
	}
	admin := w.(*Admin)
	admin.router = admin.newRouter()
	admin.RegisterRoutes()

	status, _ := getJSON(t, admin.HTTPRouter(), http.MethodPost, "/echo?text=x")
	if status != http.StatusUnauthorized {
		t.Fatalf("unauthenticated /echo status = %d", status)
	}

	req := httptest.NewRequest(http.MethodPost, "/echo?text=x", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rr := httptest.NewRecorder()
	admin.HTTPRouter().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("authenticated /echo status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestAdminAcceptsRotatedTokens(t *testing.T) {
	l := launch(t, `{ port=3001, roles=[ "echo" ] }`)
	c := l.contexts[0]
	waitFor(t, "echo binding", func() bool { return c.EchoRef() != nil })

	w, err := NewAdmin(c, config.Section{}.
		Set("tokens", []string{"previous"}).
		Set("token", "current"))
	if err != nil {
		t.Fatalf("new admin: %v", err)
	}
	admin := w.(*Admin)
	admin.router = admin.newRouter()
	admin.RegisterRoutes()

	for token, want := range map[string]int{
		"previous": http.StatusOK,
		"current":  http.StatusOK,
		"stale":    http.StatusUnauthorized,
	} {
		req := httptest.NewRequest(http.MethodPost, "/echo?text=x", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		admin.HTTPRouter().ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("token %q status = %d, want %d", token, rr.Code, want)
		}
	}
}
