package coalesce

import (
	"strings"
	"testing"
)

func TestFingerprintStability(t *testing.T) {
	a := Fingerprint("openai", "/v1/completions", "complete", []byte(`{"prompt":"hi"}`), "sk-secret")
	b := Fingerprint("openai", "/v1/completions", "complete", []byte(`{"prompt":"hi"}`), "sk-secret")
	if a != b {
		t.Fatalf("identical inputs produced %q and %q", a, b)
	}
}

func TestFingerprintDiscriminates(t *testing.T) {
	base := Fingerprint("openai", "/v1/completions", "complete", []byte(`{"prompt":"hi"}`), "sk-secret")

	tests := []struct {
		name string
		got  string
	}{
		{"endpoint", Fingerprint("anthropic", "/v1/completions", "complete", []byte(`{"prompt":"hi"}`), "sk-secret")},
		{"path", Fingerprint("openai", "/v1/other", "complete", []byte(`{"prompt":"hi"}`), "sk-secret")},
		{"mode", Fingerprint("openai", "/v1/completions", "stream", []byte(`{"prompt":"hi"}`), "sk-secret")},
		{"payload", Fingerprint("openai", "/v1/completions", "complete", []byte(`{"prompt":"yo"}`), "sk-secret")},
		{"credential", Fingerprint("openai", "/v1/completions", "complete", []byte(`{"prompt":"hi"}`), "sk-other")},
	}
	for _, tt := range tests {
		if tt.got == base {
			t.Errorf("changing %s did not change the fingerprint", tt.name)
		}
	}
}

func TestFingerprintIgnoresJSONWhitespace(t *testing.T) {
	compact := Fingerprint("openai", "/p", "complete", []byte(`{"prompt":"hi","n":1}`), "")
	spaced := Fingerprint("openai", "/p", "complete", []byte("{ \"prompt\": \"hi\",\n  \"n\": 1 }"), "")
	if compact != spaced {
		t.Fatal("insignificant JSON whitespace must not defeat deduplication")
	}
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	// Shifting bytes across the endpoint/path boundary must change the key.
	a := Fingerprint("ab", "c", "", nil, "")
	b := Fingerprint("a", "bc", "", nil, "")
	if a == b {
		t.Fatal("field boundary collision")
	}
}

func TestFingerprintNeverContainsCredential(t *testing.T) {
	const credential = "sk-proj-supersecretvalue"
	fp := Fingerprint("openai", "/v1/completions", "complete", []byte(`{}`), credential)
	if strings.Contains(fp, credential) {
		t.Fatal("fingerprint contains the cleartext credential")
	}
	// The fingerprint is a short hex digest, far too small to embed the key.
	if len(fp) > 16 {
		t.Errorf("fingerprint length %d, want a 64-bit hex digest", len(fp))
	}
}

func TestFingerprintNonJSONPayload(t *testing.T) {
	a := Fingerprint("openai", "/p", "complete", []byte("not json"), "")
	b := Fingerprint("openai", "/p", "complete", []byte("not json"), "")
	if a != b {
		t.Fatal("non-JSON payloads must still fingerprint deterministically")
	}
}
