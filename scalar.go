package muesli

import (
	"encoding"
	"encoding/base64"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zoobzio/muesli/event"
)

var (
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

const dateLayout = "2006-01-02"

// isTextual reports whether t marshals itself to text and *t reads it back.
func isTextual(t reflect.Type) bool {
	return t.Implements(textMarshalerType) && reflect.PointerTo(t).Implements(textUnmarshalerType)
}

// formatScalar renders a primitive value as document text. quote is set when
// the text of a string would otherwise be read back as another type.
func formatScalar(v reflect.Value, enum *EnumAttr) (text string, quote bool, err error) {
	t := v.Type()

	switch {
	case enum != nil && isIntegerKind(t.Kind()):
		if name, ok := enum.Name(integerOf(v)); ok {
			return name, false, nil
		}
	case t == typeTime:
		return v.Interface().(time.Time).Format(time.RFC3339Nano), false, nil
	case t == typeDuration:
		return time.Duration(v.Int()).String(), false, nil
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return base64.StdEncoding.EncodeToString(v.Bytes()), false, nil
	case isTextual(t):
		b, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return "", false, errors.Wrapf(err, "marshal %s", t)
		}
		return string(b), sniffTag(string(b)) != TagString, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), false, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), false, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(v.Uint(), 10), false, nil
	case reflect.Float32:
		return formatFloat(v.Float(), 32), false, nil
	case reflect.Float64:
		return formatFloat(v.Float(), 64), false, nil
	case reflect.String:
		s := v.String()
		return s, needsQuotes(s), nil
	}
	return "", false, errors.Wrapf(ErrUnsupportedShape, "%s is not a primitive", t)
}

// formatFloat renders f in the shortest form that reads back as a float.
// Integral values keep a trailing ".0".
func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}

	format := byte('f')
	if abs := math.Abs(f); abs != 0 {
		if bits == 64 && (abs < 1e-6 || abs >= 1e21) ||
			bits == 32 && (float32(abs) < 1e-6 || float32(abs) >= 1e21) {
			format = 'e'
		}
	}
	s := strconv.FormatFloat(f, format, -1, bits)
	if format == 'e' {
		// e-09 to e-9
		if n := len(s); n >= 4 && s[n-4] == 'e' && s[n-3] == '-' && s[n-2] == '0' {
			s = s[:n-2] + s[n-1:]
		}
	}
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// needsQuotes reports whether s must be quoted to stay a string.
func needsQuotes(s string) bool {
	if sniffTag(s) != TagString {
		return true
	}
	switch strings.ToLower(s) {
	case "yes", "no", "on", "off", "y", "n":
		return true
	}
	return false
}

// parseScalar reads text as a value of the primitive type t. remapped is set
// when an enum alias was used.
func parseScalar(text string, t reflect.Type, enum *EnumAttr) (reflect.Value, bool, error) {
	v := reflect.New(t).Elem()

	if enum != nil && isIntegerKind(t.Kind()) {
		if n, remapped, ok := enum.Parse(strings.TrimSpace(text)); ok {
			setInteger(v, n)
			return v, remapped, nil
		}
	}

	switch {
	case t == typeTime:
		ts, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			var dateErr error
			if ts, dateErr = time.Parse(dateLayout, text); dateErr != nil {
				return v, false, conversionError(text, t, err)
			}
		}
		v.Set(reflect.ValueOf(ts))
		return v, false, nil
	case t == typeDuration:
		d, err := time.ParseDuration(text)
		if err != nil {
			n, intErr := parseInt(text, 64)
			if intErr != nil {
				return v, false, conversionError(text, t, err)
			}
			d = time.Duration(n)
		}
		v.SetInt(int64(d))
		return v, false, nil
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		b, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(text), ""))
		if err != nil {
			return v, false, conversionError(text, t, err)
		}
		v.SetBytes(b)
		return v, false, nil
	case isTextual(t):
		if err := v.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(text)); err != nil {
			return v, false, conversionError(text, t, err)
		}
		return v, false, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		b, ok := parseBool(text)
		if !ok {
			return v, false, conversionError(text, t, nil)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := parseInt(text, t.Bits())
		if err != nil {
			return v, false, conversionError(text, t, unwrapNum(err))
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := parseUint(text, t.Bits())
		if err != nil {
			return v, false, conversionError(text, t, unwrapNum(err))
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := parseFloat(text, t.Bits())
		if err != nil {
			return v, false, conversionError(text, t, unwrapNum(err))
		}
		v.SetFloat(f)
	case reflect.String:
		v.SetString(text)
	case reflect.Interface:
		sniffed := sniff(text)
		if !sniffed.IsValid() {
			return v, false, nil
		}
		if !sniffed.Type().AssignableTo(t) {
			return v, false, errors.Wrapf(ErrUnresolvedType, "%s does not implement %s", sniffed.Type(), t)
		}
		v.Set(sniffed)
	default:
		return v, false, errors.Wrapf(ErrUnsupportedShape, "%s is not a primitive", t)
	}
	return v, false, nil
}

// unwrapNum drops the strconv prefix ("strconv.ParseInt: parsing ...") and
// keeps the reason.
func unwrapNum(err error) error {
	var ne *strconv.NumError
	if errors.As(err, &ne) {
		return ne.Err
	}
	return err
}

func parseBool(text string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true", "yes", "on", "y":
		return true, true
	case "false", "no", "off", "n":
		return false, true
	}
	return false, false
}

// splitNumber strips digit separators and returns the sign, digits and base.
func splitNumber(text string) (sign, digits string, base int) {
	s := strings.ReplaceAll(strings.TrimSpace(text), "_", "")
	if s != "" && (s[0] == '-' || s[0] == '+') {
		sign, s = s[:1], s[1:]
	}
	base = 10
	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X':
			base, s = 16, s[2:]
		case 'o', 'O':
			base, s = 8, s[2:]
		case 'b', 'B':
			base, s = 2, s[2:]
		}
	}
	return sign, s, base
}

func parseInt(text string, bits int) (int64, error) {
	sign, digits, base := splitNumber(text)
	if sign == "+" {
		sign = ""
	}
	return strconv.ParseInt(sign+digits, base, bits)
}

func parseUint(text string, bits int) (uint64, error) {
	sign, digits, base := splitNumber(text)
	if sign == "-" {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseUint(digits, base, bits)
}

func parseFloat(text string, bits int) (float64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(text), "_", "")
	switch strings.ToLower(s) {
	case ".nan":
		return math.NaN(), nil
	case ".inf", "+.inf":
		return math.Inf(1), nil
	case "-.inf":
		return math.Inf(-1), nil
	}
	if _, _, base := splitNumber(s); base != 10 {
		n, err := parseInt(s, 64)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	}
	return strconv.ParseFloat(s, bits)
}

// sniffTag returns the core tag plain text resolves to.
func sniffTag(text string) string {
	switch text {
	case "", "~", "null", "Null", "NULL":
		return TagNull
	case "true", "True", "TRUE", "false", "False", "FALSE":
		return TagBool
	}
	if !startsNumeric(text) {
		return TagString
	}
	if _, err := parseInt(text, 64); err == nil && !strings.Contains(text, "__") {
		return TagInt
	}
	if _, err := parseFloat(text, 64); err == nil {
		return TagFloat
	}
	return TagString
}

// startsNumeric filters out text that strconv would accept but YAML reads
// as a string, such as "Inf" or "infinity".
func startsNumeric(text string) bool {
	if text == "" {
		return false
	}
	c := text[0]
	if c == '-' || c == '+' {
		if len(text) == 1 {
			return false
		}
		c = text[1]
	}
	return c == '.' || (c >= '0' && c <= '9')
}

// sniff resolves plain text to the value it implies: nil, bool, int,
// float64 or string. Integers that overflow int fall back to float64.
func sniff(text string) reflect.Value {
	switch sniffTag(text) {
	case TagNull:
		return reflect.Value{}
	case TagBool:
		b, _ := parseBool(text)
		return reflect.ValueOf(b)
	case TagInt:
		n, err := parseInt(text, strconv.IntSize)
		if err == nil {
			return reflect.ValueOf(int(n))
		}
		f, _ := parseFloat(text, 64)
		return reflect.ValueOf(f)
	case TagFloat:
		f, _ := parseFloat(text, 64)
		return reflect.ValueOf(f)
	}
	return reflect.ValueOf(text)
}

// sniffEvent resolves a scalar event read under a generic type: quoted
// scalars are strings, plain ones are sniffed.
func sniffEvent(ev event.Event) reflect.Value {
	if ev.ScalarStyle.Quoted() {
		return reflect.ValueOf(ev.Value)
	}
	return sniff(ev.Value)
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func integerOf(v reflect.Value) int64 {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(v.Uint())
	}
	return v.Int()
}

func setInteger(v reflect.Value, n int64) {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		v.SetUint(uint64(n))
	default:
		v.SetInt(n)
	}
}
