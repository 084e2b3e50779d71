package codec

import "testing"

type sample struct {
	B string `msgpack:"b"`
	A string `msgpack:"a"`
}

func TestEncodeIsDeterministicAcrossFieldOrder(t *testing.T) {
	s1 := sample{A: "1", B: "2"}
	s2 := sample{B: "2", A: "1"}

	b1, err := Encode(s1)
	if err != nil {
		t.Fatalf("encode s1: %v", err)
	}
	b2, err := Encode(s2)
	if err != nil {
		t.Fatalf("encode s2: %v", err)
	}

	if string(b1) != string(b2) {
		t.Fatalf("encodings diverged for equal values: %x vs %x", b1, b2)
	}
}

func TestDecodeStrictRejectsUnknownFields(t *testing.T) {
	type withExtra struct {
		A string `msgpack:"a"`
		C string `msgpack:"c"`
	}
	b, err := Encode(withExtra{A: "1", C: "2"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var out sample
	if err := Decode(b, &out, Strict); err == nil {
		t.Fatal("expected strict decode to reject unknown field, got nil error")
	}

	var lax sample
	if err := Decode(b, &lax, Lax); err != nil {
		t.Fatalf("expected lax decode to tolerate unknown field, got: %v", err)
	}
}

func TestVersionStableAndSensitiveToContent(t *testing.T) {
	v1, err := Version(sample{A: "1", B: "2"})
	if err != nil {
		t.Fatalf("version 1: %v", err)
	}
	v2, err := Version(sample{B: "2", A: "1"})
	if err != nil {
		t.Fatalf("version 2: %v", err)
	}
	if v1 != v2 {
		t.Fatalf("expected equal fingerprints for equal content, got %s vs %s", v1, v2)
	}

	v3, err := Version(sample{A: "1", B: "3"})
	if err != nil {
		t.Fatalf("version 3: %v", err)
	}
	if v1 == v3 {
		t.Fatal("expected differing content to produce differing fingerprints")
	}
}

func TestEncodeStringsRoundTrip(t *testing.T) {
	in := []string{"id", "total", "created_at"}
	b, err := EncodeStrings(in)
	if err != nil {
		t.Fatalf("encode strings: %v", err)
	}
	out, err := DecodeStrings(b)
	if err != nil {
		t.Fatalf("decode strings: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d elements, got %d", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("element %d: expected %q, got %q", i, in[i], out[i])
		}
	}
}
