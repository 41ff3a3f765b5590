package variables

import "testing"

func TestResolve(t *testing.T) {
	vars := map[string]string{"nome": "João", "empresa": "TopTV", "pix": "abc@pix"}
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Olá {nome}!", "Olá João!"},
		{"repeated", "{nome}, {nome}", "João, João"},
		{"unknown key", "Plano: {plano}.", "Plano: ."},
		{"unmatched open brace", "valor {nome", "valor {nome"},
		{"unmatched close brace", "nome} fim", "nome} fim"},
		{"empty braces", "a {} b", "a {} b"},
		{"spaces not a key", "{ nome }", "{ nome }"},
		{"no placeholders", "bem-vindo", "bem-vindo"},
		{"empty", "", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Resolve(c.in, vars); got != c.want {
				t.Errorf("Resolve(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestResolveAllHandlesDoubleBraces(t *testing.T) {
	vars := map[string]string{"nome": "Ana", "valor": "R$ 29,90"}
	got := ResolveAll("Oi {{nome}}, seu valor é {valor} ({{ nome }})", vars)
	want := "Oi Ana, seu valor é R$ 29,90 (Ana)"
	if got != want {
		t.Errorf("ResolveAll() = %q, want %q", got, want)
	}
	if got := ResolveAll("{{desconhecido}}x", vars); got != "x" {
		t.Errorf("unknown double-brace key should resolve to empty, got %q", got)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	vars := map[string]string{"nome": "Ana", "pix": "chave-123"}
	texts := []string{"{nome} {pix}", "{{nome}} {x} {", "sem variáveis"}
	for _, text := range texts {
		once := ResolveAll(text, vars)
		if twice := ResolveAll(once, vars); twice != once {
			t.Errorf("not idempotent for %q: %q != %q", text, twice, once)
		}
	}
}

func TestMerge(t *testing.T) {
	got := Merge(map[string]string{"a": "1", "b": "2"}, map[string]string{"b": "3"})
	if got["a"] != "1" || got["b"] != "3" {
		t.Errorf("Merge() = %v", got)
	}
}
