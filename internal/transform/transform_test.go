package transform

import (
	"math"
	"testing"

	"github.com/nao1215/krk/internal/model"
)

func TestApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		opts Options
		want string
	}{
		{name: "no steps", raw: "  Hello  ", opts: Options{}, want: "  Hello  "},
		{name: "trim", raw: "  Hello \n", opts: Options{Trim: true}, want: "Hello"},
		{name: "strip markup", raw: "<b>Bold</b> and <i>it&amp;alic</i>", opts: Options{StripHTML: true}, want: "Bold and it&alic"},
		{name: "strip plain text is identity", raw: "plain", opts: Options{StripHTML: true}, want: "plain"},
		{name: "regex keeps whole first match", raw: "Price: $99.99 (was $120)", opts: Options{Regex: `[0-9]+\.[0-9]+`}, want: "99.99"},
		{name: "regex without match leaves value", raw: "no digits", opts: Options{Regex: `[0-9]+`}, want: "no digits"},
		{name: "invalid regex leaves value", raw: "abc", opts: Options{Regex: `(`}, want: "abc"},
		{name: "replace pair", raw: "a-b-c", opts: Options{Replace: []string{"-", "+"}}, want: "a+b+c"},
		{name: "replace wrong arity ignored", raw: "a-b", opts: Options{Replace: []string{"-"}}, want: "a-b"},
		{name: "replace three elements ignored", raw: "a-b", opts: Options{Replace: []string{"-", "+", "x"}}, want: "a-b"},
		{name: "uppercase", raw: "straße", opts: Options{Uppercase: true}, want: "STRASSE"},
		{name: "lowercase", raw: "HeLLo", opts: Options{Lowercase: true}, want: "hello"},
		{name: "uppercase wins over lowercase", raw: "Mixed", opts: Options{Uppercase: true, Lowercase: true}, want: "MIXED"},
		{
			name: "fixed order trim then strip then regex then replace then case",
			raw:  "  <span>Total: 1,234 usd</span>  ",
			opts: Options{Trim: true, StripHTML: true, Regex: `[0-9,]+ usd`, Replace: []string{",", ""}, Uppercase: true},
			want: "1234 USD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Apply(tt.raw, tt.opts); got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestRunPriceToNumber(t *testing.T) {
	t.Parallel()

	v := Run("$99.99", Options{Trim: true, Regex: `[0-9]+\.[0-9]+`, ToNumber: true})
	n, ok := v.Number()
	if !ok {
		t.Fatalf("expected number, got %s", v.Kind())
	}
	if n != 99.99 {
		t.Errorf("expected 99.99, got %v", n)
	}
}

func TestCoerce(t *testing.T) {
	t.Parallel()

	t.Run("number parses trimmed value", func(t *testing.T) {
		t.Parallel()
		n, ok := Coerce(" 42 ", Options{ToNumber: true}).Number()
		if !ok || n != 42 {
			t.Errorf("expected 42, got %v (ok=%v)", n, ok)
		}
	})

	t.Run("unparsable number falls back to text", func(t *testing.T) {
		t.Parallel()
		v := Coerce("abc", Options{ToNumber: true})
		if s, ok := v.Text(); !ok || s != "abc" {
			t.Errorf("expected text abc, got %v", v)
		}
	})

	t.Run("overflow becomes infinity", func(t *testing.T) {
		t.Parallel()
		n, ok := Coerce("1e400", Options{ToNumber: true}).Number()
		if !ok || !math.IsInf(n, 1) {
			t.Errorf("expected +Inf, got %v (ok=%v)", n, ok)
		}
	})

	t.Run("number wins over boolean", func(t *testing.T) {
		t.Parallel()
		v := Coerce("1", Options{ToNumber: true, ToBoolean: true})
		if v.Kind() != model.KindNumber {
			t.Errorf("expected number, got %s", v.Kind())
		}
	})

	t.Run("boolean truth table", func(t *testing.T) {
		t.Parallel()
		cases := map[string]bool{
			"true": true, " TRUE ": true, "1": true, "yes": true, "On": true,
			"false": false, "maybe": false, "0": false, "": false, "y": false,
		}
		for in, want := range cases {
			b, ok := Coerce(in, Options{ToBoolean: true}).Bool()
			if !ok {
				t.Errorf("Coerce(%q) did not return a bool", in)
				continue
			}
			if b != want {
				t.Errorf("Coerce(%q) = %v, want %v", in, b, want)
			}
		}
	})

	t.Run("text by default", func(t *testing.T) {
		t.Parallel()
		if s, ok := Coerce("x", Options{}).Text(); !ok || s != "x" {
			t.Errorf("expected text x, got %q", s)
		}
	})
}

func TestStripMarkup(t *testing.T) {
	t.Parallel()

	got := StripMarkup(`<p>One <a href="#">two</a></p><!-- note --><p>three</p>`)
	if got != "One twothree" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestApplyIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"  Mixed Case  ", "\tstraße\n", "", "ÉCOLE"}
	optionSets := []Options{
		{Trim: true},
		{Trim: true, Uppercase: true},
		{Lowercase: true},
		{Trim: true, Lowercase: true},
	}
	for _, in := range inputs {
		for _, opts := range optionSets {
			once := Apply(in, opts)
			if twice := Apply(once, opts); twice != once {
				t.Errorf("Apply(%q, %+v) not idempotent: %q then %q", in, opts, once, twice)
			}
		}
	}
}
