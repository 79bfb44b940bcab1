package checksum

import "testing"

func TestDigestsOfEmptyInput(t *testing.T) {
	if got, want := Strong(nil), "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"; got != want {
		t.Errorf("Strong() = %q, want %q", got, want)
	}
	if got, want := StrongBase64(nil), "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU="; got != want {
		t.Errorf("StrongBase64() = %q, want %q", got, want)
	}
	if got, want := Weak(nil), "d41d8cd98f00b204e9800998ecf8427e"; got != want {
		t.Errorf("Weak() = %q, want %q", got, want)
	}
}

func TestWeakSensitivity(t *testing.T) {
	a := Weak([]byte("---\n1.0.0 |checksum:abc\n"))
	b := Weak([]byte("---\n1.0.0  |checksum:abc\n"))
	c := Weak([]byte("---\n1.0.0 |checksum:abc\n"))

	if a == b {
		t.Error("expected whitespace change to alter weak digest")
	}
	if a != c {
		t.Error("expected identical input to produce identical weak digest")
	}
	if len(a) != 32 {
		t.Errorf("weak digest length = %d, want 32", len(a))
	}
	if len(Strong([]byte("x"))) != 64 {
		t.Error("strong digest should be 64 hex characters")
	}
}
