package postgres

import (
	"encoding/base64"
	"testing"

	"shoveld/internal/codec"
)

func TestEncodeArgRoundTripsThroughBase64(t *testing.T) {
	in := []string{"id", "total"}
	arg, err := encodeArg(in)
	if err != nil {
		t.Fatalf("encodeArg: %v", err)
	}

	b, err := base64.StdEncoding.DecodeString(arg)
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	out, err := codec.DecodeStrings(b)
	if err != nil {
		t.Fatalf("decode strings: %v", err)
	}

	if len(out) != len(in) {
		t.Fatalf("expected %v, got %v", in, out)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("expected %v, got %v", in, out)
		}
	}
}

func TestQuoteLiteralEscapesEmbeddedQuotes(t *testing.T) {
	got := quoteLiteral("o'brien")
	want := "'o''brien'"
	if got != want {
		t.Fatalf("quoteLiteral = %q, want %q", got, want)
	}
}

func TestQuotedColumnListJoinsSanitizedIdentifiers(t *testing.T) {
	got := quotedColumnList([]string{"id", "total"})
	want := `"id", "total"`
	if got != want {
		t.Fatalf("quotedColumnList = %q, want %q", got, want)
	}
}
