package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestStaticTokenValidate(t *testing.T) {
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestAnyTokenAcceptsEveryConfiguredToken(t *testing.T) {
	v := AnyToken("old", " ", "new")
	for _, token := range []string{"old", "new"} {
		if err := v.Validate(token); err != nil {
			t.Fatalf("token %q rejected: %v", token, err)
		}
	}
	for _, token := range []string{"", " ", "other"} {
		if err := v.Validate(token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("token %q err = %v, want ErrUnauthorized", token, err)
		}
	}
	if err := AnyToken().Validate(""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token set must deny, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"abc":          "",
		"":             "",
	}
	for header, want := range tests {
		if got := BearerToken(header); got != want {
			t.Fatalf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestRequire(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/open", Require(nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/guarded", Require(StaticToken{Token: "s3cret"}), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := []struct {
		path   string
		header string
		want   int
	}{
		{path: "/open", want: http.StatusNoContent},
		{path: "/guarded", want: http.StatusUnauthorized},
		{path: "/guarded", header: "Bearer wrong", want: http.StatusUnauthorized},
		{path: "/guarded", header: "Bearer s3cret", want: http.StatusNoContent},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodPost, tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Fatalf("%s %q status = %d, want %d", tc.path, tc.header, rr.Code, tc.want)
		}
	}
}
