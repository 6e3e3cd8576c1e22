package arrays

import "testing"

func TestDecodeSimple(t *testing.T) {
	values, err := Decode("{1,2,3}")
	if err != nil {
		t.Fatal(err)
	}

	if len(values) != 3 {
		t.Fatalf("unexpected element count %d", len(values))
	}

	if values[1].Text != "2" {
		t.Errorf("unexpected element %q", values[1].Text)
	}
}

func TestDecodeQuotedAndNull(t *testing.T) {
	values, err := Decode(`{"hello, world",NULL,"with \"quotes\""}`)
	if err != nil {
		t.Fatal(err)
	}

	if len(values) != 3 {
		t.Fatalf("unexpected element count %d", len(values))
	}

	if values[0].Text != "hello, world" {
		t.Errorf("unexpected element %q", values[0].Text)
	}

	if !values[1].Null {
		t.Errorf("expected second element to be NULL")
	}

	if values[2].Text != `with "quotes"` {
		t.Errorf("unexpected element %q", values[2].Text)
	}
}

func TestDecodeNested(t *testing.T) {
	values, err := Decode("{{1,2},{3,4}}")
	if err != nil {
		t.Fatal(err)
	}

	if len(values) != 2 {
		t.Fatalf("unexpected outer element count %d", len(values))
	}

	if len(values[0].Elements) != 2 || values[0].Elements[1].Text != "2" {
		t.Errorf("unexpected nested elements %+v", values[0].Elements)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []string{"", "1,2,3", "{1,2,3", "{1,,3}"}
	for _, c := range cases {
		if _, err := Decode(c); err == nil {
			t.Errorf("expected error decoding %q", c)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	original := "{1,\"hello, world\",NULL,{3,4}}"

	values, err := Decode(original)
	if err != nil {
		t.Fatal(err)
	}

	encoded := Encode(values)

	reparsed, err := Decode(encoded)
	if err != nil {
		t.Fatalf("re-decoding encoded output failed: %s", err)
	}

	if len(reparsed) != len(values) {
		t.Fatalf("round-trip changed element count: %d vs %d", len(reparsed), len(values))
	}
}

func TestEncodeQuotesSpecialCharacters(t *testing.T) {
	out := Encode([]Value{{Text: "a,b"}, {Text: "plain"}, {Null: true}})
	expected := `{"a,b",plain,NULL}`
	if out != expected {
		t.Errorf("unexpected encoding %q, expected %q", out, expected)
	}
}
