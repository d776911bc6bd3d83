package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// AnyValue in expected JSON matches whatever the actual document holds at
// that key, as long as the key is present.
const AnyValue = "<<ANY>>"

// JSONOptions controls structural JSON comparison.
type JSONOptions struct {
	IgnoreExtraKeys bool     `default:"false"`
	IgnoredFields   []string `default:""`
	Colors          bool     `default:"false"`
}

// JSONOption mutates JSONOptions.
type JSONOption func(*JSONOptions)

// WithIgnoreExtraKeys drops object keys the expected document does not name.
func WithIgnoreExtraKeys() JSONOption { return func(o *JSONOptions) { o.IgnoreExtraKeys = true } }

// WithIgnoredFields removes the named keys at every depth on both sides.
func WithIgnoredFields(fields ...string) JSONOption {
	return func(o *JSONOptions) { o.IgnoredFields = append(o.IgnoredFields, fields...) }
}

// MustJSON marshals v or panics.
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// AssertJSON fails t with an annotated diff when the documents differ.
func AssertJSON(t TestingT, actual, expected string, opts ...JSONOption) bool {
	t.Helper()
	o := JSONOptions{}
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}

	diff, err := JSONDiff(actual, expected, o)
	if err != nil {
		t.Errorf("json compare: %v", err)
		return false
	}
	if diff != "" {
		t.Errorf("json mismatch:\n%s", diff)
		return false
	}
	return true
}

// JSONDiff returns an empty string when the documents match under o.
func JSONDiff(actual, expected string, o JSONOptions) (string, error) {
	var a, e any
	if err := json.Unmarshal([]byte(expected), &e); err != nil {
		return "", fmt.Errorf("expected: %w", err)
	}
	if err := json.Unmarshal([]byte(actual), &a); err != nil {
		return "", fmt.Errorf("actual: %w", err)
	}

	// gojsondiff only compares objects at the root.
	if _, ok := e.([]any); ok {
		e, a = map[string]any{"items": e}, map[string]any{"items": a}
	}

	fillAny(e, a)
	for _, f := range o.IgnoredFields {
		dropKey(e, f)
		dropKey(a, f)
	}
	if o.IgnoreExtraKeys {
		pruneTo(a, e)
	}

	eb, _ := json.Marshal(e)
	ab, _ := json.Marshal(a)
	diff, err := gojsondiff.New().Compare(eb, ab)
	if err != nil {
		return "", err
	}
	if !diff.Modified() {
		return "", nil
	}

	var left map[string]any
	_ = json.Unmarshal(eb, &left)
	f := formatter.NewAsciiFormatter(left, formatter.AsciiFormatterConfig{ShowArrayIndex: true, Coloring: o.Colors})
	return f.Format(diff)
}

// walkPair visits matching object keys and array indexes of two documents.
func walkPair(e, a any, visit func(em, am map[string]any)) {
	switch ev := e.(type) {
	case map[string]any:
		av, ok := a.(map[string]any)
		if !ok {
			return
		}
		visit(ev, av)
		for k := range ev {
			walkPair(ev[k], av[k], visit)
		}
	case []any:
		av, ok := a.([]any)
		if !ok {
			return
		}
		for i := range ev {
			if i < len(av) {
				walkPair(ev[i], av[i], visit)
			}
		}
	}
}

func fillAny(e, a any) {
	walkPair(e, a, func(em, am map[string]any) {
		for k, v := range em {
			if s, ok := v.(string); ok && s == AnyValue {
				if av, present := am[k]; present {
					em[k] = av
				}
			}
		}
	})
}

func pruneTo(a, e any) {
	walkPair(e, a, func(em, am map[string]any) {
		for k := range am {
			if _, ok := em[k]; !ok {
				delete(am, k)
			}
		}
	})
}

func dropKey(doc any, key string) {
	switch v := doc.(type) {
	case map[string]any:
		delete(v, key)
		for _, child := range v {
			dropKey(child, key)
		}
	case []any:
		for _, child := range v {
			dropKey(child, key)
		}
	}
}
