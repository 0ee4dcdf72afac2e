package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "readonly write",
			code:    "E101",
			wantMsg: "write to readonly reactive value",
			wantCat: CategoryReactive,
		},
		{
			name:    "computed readonly",
			code:    "E102",
			wantMsg: "computed is readonly",
			wantCat: CategoryReactive,
		},
		{
			name:    "recursion limit",
			code:    "E201",
			wantMsg: "maximum recursive updates exceeded",
			wantCat: CategoryScheduler,
		},
		{
			name:    "unknown error code",
			code:    "E999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategoryConfig, "file %q not found", "viewstate.json")
	if err.Message != `file "viewstate.json" not found` {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Code != "" {
		t.Errorf("Code = %q, want empty", err.Code)
	}
}

func TestErrorString(t *testing.T) {
	err := New("E102")
	if got := err.Error(); got != "E102: computed is readonly" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := New("E301").Wrap(stderrors.New("bad yaml"))
	if got := wrapped.Error(); got != "E301: invalid binding configuration: bad yaml" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := New("E101").WithDetail("key \"count\"")
	if !stderrors.Is(err, ErrReadonly) {
		t.Error("expected errors.Is to match ErrReadonly")
	}
	if stderrors.Is(err, ErrComputedReadonly) {
		t.Error("expected errors.Is not to match a different code")
	}

	a := Newf(CategoryCLI, "a")
	b := Newf(CategoryCLI, "a")
	if stderrors.Is(a, b) {
		t.Error("errors without codes should only match themselves")
	}
	if !stderrors.Is(a, a) {
		t.Error("error should match itself")
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := New("E301").Wrap(cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "E301") != nil {
		t.Error("FromError(nil) should be nil")
	}

	orig := New("E401")
	if FromError(orig, "E301") != orig {
		t.Error("FromError should return existing *Error unchanged")
	}

	plain := stderrors.New("boom")
	got := FromError(plain, "E301")
	if got.Code != "E301" || got.Wrapped != plain {
		t.Errorf("FromError = %+v", got)
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New("E201").WithSuggestion("Break the cycle between the two watchers")
	out := err.Format()
	for _, want := range []string{"ERROR E201:", "maximum recursive updates exceeded", "Hint: Break the cycle"} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatCompact(t *testing.T) {
	err := New("E101")
	if got := err.FormatCompact(); got != "E101: write to readonly reactive value" {
		t.Errorf("FormatCompact() = %q", got)
	}

	err = New("E101").WithDetail("key \"count\"")
	if got := err.FormatCompact(); got != `E101: write to readonly reactive value (key "count")` {
		t.Errorf("FormatCompact() = %q", got)
	}
}

func TestFormatJSON(t *testing.T) {
	err := New("E401").Wrap(stderrors.New("step 3"))
	out := err.FormatJSON()
	for _, want := range []string{`"code":"E401"`, `"category":"scenario"`, `"cause":"step 3"`} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatJSON() missing %q in %s", want, out)
		}
	}
}

func TestGetAllCodesSorted(t *testing.T) {
	codes := GetAllCodes()
	if len(codes) == 0 {
		t.Fatal("expected registered codes")
	}
	for i := 1; i < len(codes); i++ {
		if codes[i-1] > codes[i] {
			t.Fatalf("codes not sorted: %v", codes)
		}
	}
}

func TestRegister(t *testing.T) {
	Register("E999", ErrorTemplate{Category: CategoryCLI, Message: "custom"})
	defer delete(registry, "E999")

	if tmpl, ok := GetTemplate("E999"); !ok || tmpl.Message != "custom" {
		t.Errorf("GetTemplate(E999) = %+v, %v", tmpl, ok)
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("one two three four five", 9)
	want := []string{"one two", "three", "four five"}
	if len(lines) != len(want) {
		t.Fatalf("wrapText = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
