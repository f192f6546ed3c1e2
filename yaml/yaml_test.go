package yaml

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/zoobzio/muesli/event"
)

func kinds(events []event.Event) []event.Kind {
	out := make([]event.Kind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestParse_Mapping(t *testing.T) {
	events, err := Parse([]byte("name: test\nvalue: 42\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	want := []event.Kind{
		event.StreamStart, event.DocumentStart, event.MappingStart,
		event.Scalar, event.Scalar, event.Scalar, event.Scalar,
		event.MappingEnd, event.DocumentEnd, event.StreamEnd,
	}
	got := kinds(events)
	if len(got) != len(want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kinds[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	key := events[5]
	if key.Value != "value" || key.Start.Line != 2 || key.Start.Column != 1 {
		t.Errorf("key event = %v at %s", key, key.Start)
	}
}

func TestParse_ImplicitTagsAreNotReported(t *testing.T) {
	events, err := Parse([]byte("a: 1\nb: !!str 2\nc: !point {x: 1}\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	var tags []string
	for _, ev := range events {
		if ev.Kind == event.Scalar || ev.Kind == event.MappingStart {
			tags = append(tags, ev.Tag)
		}
	}
	want := []string{"", "", "", "", "!!str", "", "!point", "", ""}
	if strings.Join(tags, ",") != strings.Join(want, ",") {
		t.Errorf("tags = %q, want %q", tags, want)
	}
}

func TestParse_Styles(t *testing.T) {
	events, err := Parse([]byte("a: [1, 2]\nb: \"q\"\nc: 'x'\nd: |\n  text\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	var seq event.Event
	styles := map[string]event.ScalarStyle{}
	for i, ev := range events {
		if ev.Kind == event.SequenceStart {
			seq = ev
		}
		if ev.Kind != event.Scalar || i+1 >= len(events) || events[i+1].Kind != event.Scalar {
			continue
		}
		switch ev.Value {
		case "b", "c", "d":
			styles[ev.Value] = events[i+1].ScalarStyle
		}
	}
	if seq.Style != event.StyleFlow {
		t.Errorf("sequence style = %v, want flow", seq.Style)
	}
	if styles["b"] != event.ScalarDoubleQuoted {
		t.Errorf("b style = %v", styles["b"])
	}
	if styles["c"] != event.ScalarSingleQuoted {
		t.Errorf("c style = %v", styles["c"])
	}
	if styles["d"] != event.ScalarLiteral {
		t.Errorf("d style = %v", styles["d"])
	}
}

func TestParse_AnchorsAndAliases(t *testing.T) {
	events, err := Parse([]byte("a: &o0 {x: 1}\nb: *o0\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	var anchor, alias string
	for _, ev := range events {
		if ev.Kind == event.MappingStart && ev.Anchor != "" {
			anchor = ev.Anchor
		}
		if ev.Kind == event.Alias {
			alias = ev.Value
		}
	}
	if anchor != "o0" || alias != "o0" {
		t.Errorf("anchor = %q, alias = %q", anchor, alias)
	}
}

func TestParse_MultipleDocuments(t *testing.T) {
	events, err := Parse([]byte("a: 1\n---\nb: 2\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	docs := 0
	for _, ev := range events {
		if ev.Kind == event.DocumentStart {
			docs++
		}
	}
	if docs != 2 {
		t.Errorf("documents = %d, want 2", docs)
	}
}

func TestParse_Empty(t *testing.T) {
	events, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("events = %v, want stream start/end only", events)
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("name: [invalid"))
	var syntax *SyntaxError
	if !errors.As(err, &syntax) {
		t.Fatalf("Parse() error = %v, want *SyntaxError", err)
	}
}

func TestEmitter_RoundTrip(t *testing.T) {
	src := "name: test\nitems:\n    - 1\n    - 2\nref: &o0\n    x: 1\nsame: *o0\n"
	events, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	out, err := Marshal(events)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(out) != src {
		t.Errorf("Marshal() =\n%s\nwant\n%s", out, src)
	}
}

func TestEmitter_TagsAndQuoting(t *testing.T) {
	events := []event.Event{
		{Kind: event.StreamStart},
		{Kind: event.DocumentStart},
		event.NewMappingStart("!point", "", event.StyleAny),
		event.NewScalar("text", "", "", event.ScalarAny),
		event.NewScalar("123", "", "", event.ScalarDoubleQuoted),
		event.NewScalar("seq", "", "", event.ScalarAny),
		event.NewSequenceStart("", "", event.StyleFlow),
		event.NewScalar("1", "", "", event.ScalarAny),
		event.NewScalar("2", "", "", event.ScalarAny),
		{Kind: event.SequenceEnd},
		{Kind: event.MappingEnd},
		{Kind: event.DocumentEnd},
		{Kind: event.StreamEnd},
	}

	out, err := Marshal(events, WithIndent(2))
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	text := string(out)
	for _, want := range []string{"!point", `text: "123"`, "seq: [1, 2]"} {
		if !strings.Contains(text, want) {
			t.Errorf("Marshal() =\n%s\nmissing %q", text, want)
		}
	}
}

func TestEmitter_UnknownAlias(t *testing.T) {
	var buf bytes.Buffer
	em := NewEmitter(&buf)
	_ = em.Emit(event.Event{Kind: event.DocumentStart})
	if err := em.Emit(event.NewAlias("missing")); err == nil {
		t.Error("Emit(alias) without anchor should fail")
	}
}

func TestEmitter_Unbalanced(t *testing.T) {
	var buf bytes.Buffer
	em := NewEmitter(&buf)
	_ = em.Emit(event.Event{Kind: event.DocumentStart})
	_ = em.Emit(event.NewMappingStart("", "", event.StyleAny))
	if err := em.Emit(event.Event{Kind: event.DocumentEnd}); err == nil {
		t.Error("DocumentEnd inside an open mapping should fail")
	}
}
