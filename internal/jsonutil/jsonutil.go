// Package jsonutil formats RPC responses for the terminal.
package jsonutil

import (
	"bytes"
	"sort"

	"github.com/fatih/structs"
	"github.com/hokaccha/go-prettyjson"
)

var formatter *prettyjson.Formatter

func init() {
	formatter = prettyjson.NewFormatter()
	formatter.Indent = 0
	formatter.Newline = ""
}

// MarshalCompactPretty formats the fields of a struct one per line, sorted by name, with colored values.
func MarshalCompactPretty(v any) ([]byte, error) {
	return marshalFields(structs.Map(v))
}

// MarshalPretty formats any value as indented, colored JSON.
func MarshalPretty(v any) ([]byte, error) {
	return prettyjson.Marshal(v)
}

func marshalFields(m map[string]any) ([]byte, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	var buf bytes.Buffer
	for _, name := range names {
		b, err := formatter.Marshal(m[name])
		if err != nil {
			return nil, err
		}
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.Write(b)
		buf.WriteRune('\n')
	}
	return buf.Bytes(), nil
}
