package flatten

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFlattenJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
		want map[string]string
	}{
		{
			name: "nested objects",
			body: `{"cabecera":{"codMensaje":"00000","detalle":{"texto":"ok"}}}`,
			want: map[string]string{
				"cabecera.codMensaje":    "00000",
				"cabecera.detalle.texto": "ok",
			},
		},
		{
			name: "list elements get numeric indices",
			body: `{"lista":{"elementos":[{"id":1},{"id":2}]}}`,
			want: map[string]string{
				"lista.elementos.0.id": "1",
				"lista.elementos.1.id": "2",
			},
		},
		{
			name: "numbers keep their textual form",
			body: `{"cod":"00000","n":10.50}`,
			want: map[string]string{
				"cod": "00000",
				"n":   "10.50",
			},
		},
		{
			name: "booleans and null",
			body: `{"ok":true,"missing":null}`,
			want: map[string]string{
				"ok": "true",
			},
		},
		{
			name: "values are trimmed for comparison",
			body: `{"status":"  OK  "}`,
			want: map[string]string{
				"status": "OK",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := ParseJSON([]byte(tt.body))
			if err != nil {
				t.Fatalf("ParseJSON: %v", err)
			}

			got := normalizedMap(Flatten(tree))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("flattened map mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFlattenDeterministic(t *testing.T) {
	body := []byte(`{"a":{"b":[{"c":1},{"c":2}],"d":"x"},"e":null}`)

	tree, err := ParseJSON(body)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}

	first := normalizedMap(Flatten(tree))
	second := normalizedMap(Flatten(tree))

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("flattening is not deterministic (-first +second):\n%s", diff)
	}
}

func TestParseJSONEmpty(t *testing.T) {
	for _, body := range []string{"", "   ", "\n"} {
		tree, err := ParseJSON([]byte(body))
		if err != nil {
			t.Fatalf("ParseJSON(%q): unexpected error %v", body, err)
		}
		if tree != nil {
			t.Errorf("ParseJSON(%q) = %v, want nil tree", body, tree)
		}
		if m := Flatten(tree); !m.IsEmpty() {
			t.Errorf("Flatten of empty payload has %d paths", m.Len())
		}
	}
}

func TestParseJSONMalformed(t *testing.T) {
	for _, body := range []string{"{", `{"a":}`, `{"a":1} trailing`} {
		_, err := ParseJSON([]byte(body))

		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("ParseJSON(%q) = %v, want *ParseError", body, err)
			continue
		}
		if parseErr.Format != "json" {
			t.Errorf("ParseError.Format = %q, want json", parseErr.Format)
		}
	}
}

func TestLookupFold(t *testing.T) {
	tree, err := ParseJSON([]byte(`{"Cabecera":{"CodMensaje":"00000"}}`))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	m := Flatten(tree)

	if _, ok := m.Lookup("cabecera.codmensaje"); ok {
		t.Error("exact Lookup matched a differently-cased path")
	}

	value, canonical, ok := m.LookupFold("cabecera.codmensaje")
	if !ok {
		t.Fatal("LookupFold did not match")
	}
	if value != "00000" || canonical != "Cabecera.CodMensaje" {
		t.Errorf("LookupFold = (%q, %q), want (00000, Cabecera.CodMensaje)", value, canonical)
	}
}

func TestLookupFoldCollisionDeterministic(t *testing.T) {
	// Two paths that fold to the same lowercase key resolve to the
	// lexicographically smallest canonical path on every run.
	tree, err := ParseJSON([]byte(`{"Status":"A","status":"B"}`))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}

	for i := 0; i < 50; i++ {
		m := Flatten(tree)
		value, canonical, ok := m.LookupFold("STATUS")
		if !ok {
			t.Fatal("LookupFold did not match")
		}
		if canonical != "Status" || value != "A" {
			t.Fatalf("LookupFold = (%q, %q), want (A, Status)", value, canonical)
		}
	}
}

// normalizedMap renders every value through Normalize so tests compare the
// same representation the evaluator sees.
func normalizedMap(m Map) map[string]string {
	out := make(map[string]string, m.Len())
	for _, p := range m.Paths() {
		v, _ := m.Lookup(p)
		out[p] = v
	}
	return out
}
