package tlv

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex fixture %q: %v", s, err)
	}
	return b
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		tag   Tag
		value string
		rest  string
	}{
		{"OneByteTag", "610360145F", 0x61, "60145F", ""},
		{"TwoByteTag", "5F1F03414243", 0x5F1F, "414243", ""},
		{"Long81", "6181804141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141",
			0x61, "4141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141414141", ""},
		{"EmptyValue", "9900", 0x99, "", ""},
		{"TrailingSibling", "870101990290", 0x87, "01", "990290"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			el, rest, err := Parse(mustHex(t, tc.in))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if el.Tag != tc.tag {
				t.Errorf("tag = %s, want %s", el.Tag, tc.tag)
			}
			if !bytes.Equal(el.Value, mustHex(t, tc.value)) {
				t.Errorf("value = %X, want %s", el.Value, tc.value)
			}
			if !bytes.Equal(rest, mustHex(t, tc.rest)) {
				t.Errorf("rest = %X, want %s", rest, tc.rest)
			}
		})
	}
}

func TestParse82Length(t *testing.T) {
	value := bytes.Repeat([]byte{0x5A}, 0x1234)
	in := append(mustHex(t, "75821234"), value...)
	el, rest, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if el.Tag != 0x75 || len(el.Value) != 0x1234 || len(rest) != 0 {
		t.Errorf("got tag %s value len %d rest %d", el.Tag, len(el.Value), len(rest))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"Empty", "", ErrTruncated},
		{"TagOnly", "61", ErrTruncated},
		{"ValueTruncated", "6105AABB", ErrTruncated},
		{"Length81Truncated", "6181", ErrTruncated},
		{"IndefiniteLength", "6180AABB", ErrInvalidLength},
		{"ThreeByteLength", "7583000102", ErrInvalidLength},
		{"TagFF", "FF00", ErrInvalidTag},
		{"ThreeByteTag", "5F8401", ErrInvalidTag},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(mustHex(t, tc.in))
			if !errors.Is(err, tc.want) {
				t.Errorf("Parse err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestMalformedErrorDetail(t *testing.T) {
	// The second sibling is truncated; the error must carry its tag
	// and offset.
	_, _, err := Parse(mustHex(t, "6105AABB"))
	var me *MalformedError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want *MalformedError", err)
	}
	if me.Tag != 0x61 || me.Offset != 0 {
		t.Errorf("detail = tag %s offset %d", me.Tag, me.Offset)
	}

	r := NewReader(mustHex(t, "990290005F1F"))
	if !r.Next() {
		t.Fatalf("first Next failed: %v", r.Err())
	}
	if r.Next() {
		t.Fatal("second Next succeeded on truncated element")
	}
	if !errors.As(r.Err(), &me) {
		t.Fatalf("err = %v, want *MalformedError", r.Err())
	}
	if me.Tag != 0x5F1F || me.Offset != 4 {
		t.Errorf("detail = tag %s offset %d, want '5F1F' offset 4", me.Tag, me.Offset)
	}
}

func TestFind(t *testing.T) {
	data := mustHex(t, "870101990290008E08AABBCCDDEEFF0011")
	el, err := Find(data, 0x99)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !bytes.Equal(el.Value, mustHex(t, "9000")) {
		t.Errorf("value = %X", el.Value)
	}
	if _, err := Find(data, 0x97); !errors.Is(err, ErrTagNotFound) {
		t.Errorf("Find absent tag err = %v", err)
	}
}

func TestOuterLen(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		// EF.COM from the Doc 9303 worked example starts 60 14.
		{"ShortForm", "60145F01", 2 + 0x14},
		{"Long81", "6181A05F", 3 + 0xA0},
		{"Long82TwoByteTag", "7F6182304800", 5 + 0x3048},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := OuterLen(mustHex(t, tc.in))
			if err != nil {
				t.Fatalf("OuterLen: %v", err)
			}
			if got != tc.want {
				t.Errorf("OuterLen = %d, want %d", got, tc.want)
			}
		})
	}
	if _, err := OuterLen(mustHex(t, "61")); !errors.Is(err, ErrTruncated) {
		t.Errorf("OuterLen on bare tag err = %v", err)
	}
}

func TestBuilderRoundtrip(t *testing.T) {
	big := bytes.Repeat([]byte{0xEE}, 0x0180)
	var b Builder
	b.Add(0x87, mustHex(t, "016375432908C044F6")).
		Add(0x5F1F, []byte("MRZ")).
		Add(0x75, big)

	r := NewReader(b.Bytes())
	var got []Element
	for r.Next() {
		got = append(got, r.Element())
	}
	if err := r.Err(); err != nil {
		t.Fatalf("reader: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("decoded %d elements, want 3", len(got))
	}
	if got[1].Tag != 0x5F1F || string(got[1].Value) != "MRZ" {
		t.Errorf("element 1 = %s % X", got[1].Tag, got[1].Value)
	}
	if got[2].Tag != 0x75 || !bytes.Equal(got[2].Value, big) {
		t.Errorf("element 2 mismatch")
	}
}

func TestTagString(t *testing.T) {
	if s := Tag(0x61).String(); s != "'61'" {
		t.Errorf("Tag(61).String() = %s", s)
	}
	if s := Tag(0x5F1F).String(); s != "'5F1F'" {
		t.Errorf("Tag(5F1F).String() = %s", s)
	}
	if !Tag(0x7F61).Constructed() || Tag(0x5F1F).Constructed() {
		t.Error("Constructed bit misread")
	}
}
