package muesli

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		bits int
		want string
	}{
		{2, 64, "2.0"},
		{-3, 64, "-3.0"},
		{0, 64, "0.0"},
		{0.5, 64, "0.5"},
		{0.1, 32, "0.1"},
		{1e21, 64, "1e+21"},
		{1e-7, 64, "1e-7"},
		{math.NaN(), 64, ".nan"},
		{math.Inf(1), 64, ".inf"},
		{math.Inf(-1), 64, "-.inf"},
	}

	for _, tt := range tests {
		if got := formatFloat(tt.in, tt.bits); got != tt.want {
			t.Errorf("formatFloat(%v, %d) = %q, want %q", tt.in, tt.bits, got, tt.want)
		}
	}
}

func TestFormatFloat_ReadsBackAsFloat(t *testing.T) {
	for _, f := range []float64{2, 1e21, 1e-7, 123.456} {
		text := formatFloat(f, 64)
		if tag := sniffTag(text); tag != TagFloat {
			t.Errorf("sniffTag(%q) = %s, want %s", text, tag, TagFloat)
		}
	}
}

func TestParseScalar(t *testing.T) {
	tests := []struct {
		name string
		text string
		typ  reflect.Type
		want any
	}{
		{"decimal", "42", reflect.TypeFor[int](), 42},
		{"separators", "1_000_000", reflect.TypeFor[int](), 1000000},
		{"hex", "0x1F", reflect.TypeFor[int](), 31},
		{"octal", "0o17", reflect.TypeFor[int](), 15},
		{"binary", "0b101", reflect.TypeFor[uint8](), uint8(5)},
		{"negative hex", "-0x10", reflect.TypeFor[int64](), int64(-16)},
		{"plus sign", "+7", reflect.TypeFor[int](), 7},
		{"float", "2.5", reflect.TypeFor[float64](), 2.5},
		{"float from int", "3", reflect.TypeFor[float32](), float32(3)},
		{"infinity", ".inf", reflect.TypeFor[float64](), math.Inf(1)},
		{"yes", "yes", reflect.TypeFor[bool](), true},
		{"Off", "Off", reflect.TypeFor[bool](), false},
		{"string", "hello", reflect.TypeFor[string](), "hello"},
		{"duration", "1m30s", reflect.TypeFor[time.Duration](), 90 * time.Second},
		{"duration nanoseconds", "1500", reflect.TypeFor[time.Duration](), time.Duration(1500)},
		{"date", "2024-01-02", reflect.TypeFor[time.Time](), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"timestamp", "2024-01-02T03:04:05Z", reflect.TypeFor[time.Time](), time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"bytes", "aGVsbG8=", reflect.TypeFor[[]byte](), []byte("hello")},
		{"interface int", "12", reflect.TypeFor[any](), 12},
		{"interface string", "twelve", reflect.TypeFor[any](), "twelve"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := parseScalar(tt.text, tt.typ, nil)
			if err != nil {
				t.Fatalf("parseScalar(%q, %s) error: %v", tt.text, tt.typ, err)
			}
			if !reflect.DeepEqual(got.Interface(), tt.want) {
				t.Errorf("parseScalar(%q, %s) = %#v, want %#v", tt.text, tt.typ, got.Interface(), tt.want)
			}
		})
	}
}

func TestParseScalar_Errors(t *testing.T) {
	tests := []struct {
		text string
		typ  reflect.Type
	}{
		{"abc", reflect.TypeFor[int]()},
		{"300", reflect.TypeFor[int8]()},
		{"-1", reflect.TypeFor[uint]()},
		{"maybe", reflect.TypeFor[bool]()},
		{"soon", reflect.TypeFor[time.Duration]()},
		{"yesterday", reflect.TypeFor[time.Time]()},
		{"!!!", reflect.TypeFor[[]byte]()},
	}

	for _, tt := range tests {
		_, _, err := parseScalar(tt.text, tt.typ, nil)
		if !errors.Is(err, ErrConversion) {
			t.Errorf("parseScalar(%q, %s) error = %v, want ErrConversion", tt.text, tt.typ, err)
		}
	}
}

type level int

func TestParseScalar_Enum(t *testing.T) {
	attrs := NewAttributeRegistry()
	RegisterEnum(attrs, map[level]string{0: "Low", 1: "High"}, map[string]level{"hi": 1})
	enum, ok := AttributeOf[*EnumAttr](attrs.Attributes(reflect.TypeFor[level]()))
	if !ok {
		t.Fatal("enum attribute not registered")
	}

	v, remapped, err := parseScalar("high", reflect.TypeFor[level](), enum)
	if err != nil {
		t.Fatalf("parseScalar() error: %v", err)
	}
	if v.Interface() != level(1) || remapped {
		t.Errorf("parseScalar(high) = %v remapped=%v, want 1 remapped=false", v.Interface(), remapped)
	}

	v, remapped, err = parseScalar("HI", reflect.TypeFor[level](), enum)
	if err != nil {
		t.Fatalf("parseScalar() error: %v", err)
	}
	if v.Interface() != level(1) || !remapped {
		t.Errorf("parseScalar(HI) = %v remapped=%v, want 1 remapped=true", v.Interface(), remapped)
	}

	// numbers still parse
	v, _, err = parseScalar("0", reflect.TypeFor[level](), enum)
	if err != nil || v.Interface() != level(0) {
		t.Errorf("parseScalar(0) = %v, %v", v, err)
	}

	text, quote, err := formatScalar(reflect.ValueOf(level(1)), enum)
	if err != nil || text != "High" || quote {
		t.Errorf("formatScalar(1) = %q, %v, %v; want High", text, quote, err)
	}
	text, _, _ = formatScalar(reflect.ValueOf(level(7)), enum)
	if text != "7" {
		t.Errorf("formatScalar(7) = %q, want 7", text)
	}
}

func TestNeedsQuotes(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"hello", false},
		{"hello world", false},
		{"Inf", false},
		{"", true},
		{"~", true},
		{"null", true},
		{"true", true},
		{"yes", true},
		{"N", true},
		{"123", true},
		{"1.5", true},
		{"0x1F", true},
		{"1_000", true},
	}

	for _, tt := range tests {
		if got := needsQuotes(tt.in); got != tt.want {
			t.Errorf("needsQuotes(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSniff(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", 42},
		{"-7", -7},
		{"4.5", 4.5},
		{"1e3", 1000.0},
		{"true", true},
		{"False", false},
		{"abc", "abc"},
		{"99999999999999999999", 1e20},
	}

	for _, tt := range tests {
		got := sniff(tt.in)
		if !got.IsValid() {
			t.Errorf("sniff(%q) is invalid", tt.in)
			continue
		}
		if !reflect.DeepEqual(got.Interface(), tt.want) {
			t.Errorf("sniff(%q) = %#v, want %#v", tt.in, got.Interface(), tt.want)
		}
	}

	if v := sniff("null"); v.IsValid() {
		t.Errorf("sniff(null) = %v, want invalid", v)
	}
}
