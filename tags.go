package muesli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/zoobzio/muesli/event"
)

// parseMemberTag parses a yaml struct tag:
//
//	yaml:"name,alias=a|b,mode=content,order=N,mask=N,default=TEXT,style=flow,omitempty"
//
// A tag of "-" ignores the member. Option values may be single-quoted to
// carry commas: default='a, b'.
func parseMemberTag(tag string) (MemberAttr, error) {
	var attr MemberAttr

	tag = strings.TrimSpace(tag)
	if tag == "-" {
		attr.Ignore = true
		return attr, nil
	}

	parts, err := splitTag(tag)
	if err != nil {
		return attr, err
	}
	if len(parts) == 0 {
		return attr, nil
	}

	attr.Name = strings.TrimSpace(parts[0])
	for _, part := range parts[1:] {
		key, value, hasValue := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		value = unquoteTagValue(strings.TrimSpace(value))

		switch key {
		case "":
			continue
		case "omitempty":
			attr.OmitEmpty = true
		case "alias":
			if !hasValue || value == "" {
				return attr, fmt.Errorf("alias requires a value")
			}
			attr.Aliases = lo.Filter(lo.Map(strings.Split(value, "|"), func(s string, _ int) string {
				return strings.TrimSpace(s)
			}), func(s string, _ int) bool { return s != "" })
		case "mode":
			mode := MemberMode(value)
			if !hasValue || mode == ModeDefault || !IsValidMemberMode(mode) {
				return attr, fmt.Errorf("invalid mode %q", value)
			}
			attr.Mode = mode
		case "order":
			n, err := strconv.Atoi(value)
			if err != nil {
				return attr, fmt.Errorf("invalid order %q", value)
			}
			attr.Order, attr.HasOrder = n, true
		case "mask":
			n, err := strconv.ParseUint(value, 0, 0)
			if err != nil || n == 0 {
				return attr, fmt.Errorf("invalid mask %q", value)
			}
			attr.Mask = uint(n)
		case "default":
			if !hasValue {
				return attr, fmt.Errorf("default requires a value")
			}
			attr.Default, attr.HasDefault = value, true
		case "style":
			switch value {
			case "flow":
				attr.Style = event.StyleFlow
			case "block":
				attr.Style = event.StyleBlock
			default:
				return attr, fmt.Errorf("invalid style %q", value)
			}
		default:
			return attr, fmt.Errorf("unknown option %q", key)
		}
	}
	return attr, nil
}

// splitTag splits on commas that are not inside single quotes.
func splitTag(tag string) ([]string, error) {
	if tag == "" {
		return nil, nil
	}
	var (
		parts   []string
		current strings.Builder
		quoted  bool
	)
	for _, r := range tag {
		switch {
		case r == '\'':
			quoted = !quoted
			current.WriteRune(r)
		case r == ',' && !quoted:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if quoted {
		return nil, fmt.Errorf("unterminated quote in %q", tag)
	}
	return append(parts, current.String()), nil
}

func unquoteTagValue(v string) string {
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return v[1 : len(v)-1]
	}
	return v
}
