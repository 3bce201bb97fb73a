package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Format selects an output encoding.
type Format string

const (
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatMsgpack Format = "msgpack"
	FormatCBOR    Format = "cbor"
)

// Formats lists every supported format.
var Formats = []Format{FormatText, FormatJSON, FormatYAML, FormatMsgpack, FormatCBOR}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (want one of text, json, yaml, msgpack, cbor)", s)
}

// Binary reports whether the format is not meant for a terminal.
func (f Format) Binary() bool {
	return f == FormatMsgpack || f == FormatCBOR
}

// cborEncMode is canonical so equal summaries encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	var err error
	cborEncMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("report: cbor enc mode: %v", err))
	}
}

// Encode writes s to w in the given format.
func Encode(w io.Writer, s *Summary, f Format) error {
	switch f {
	case FormatText:
		return WriteText(w, s)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatMsgpack:
		data, err := Marshal(s)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case FormatCBOR:
		data, err := cborEncMode.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to encode cbor: %w", err)
		}
		_, err = w.Write(data)
		return err
	}
	return fmt.Errorf("unknown format %q", f)
}

// Decode reads a summary written by Encode. The text format is one-way.
func Decode(r io.Reader, f Format) (*Summary, error) {
	var s Summary
	switch f {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&s); err != nil {
			return nil, fmt.Errorf("failed to decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&s); err != nil {
			return nil, fmt.Errorf("failed to decode yaml: %w", err)
		}
	case FormatMsgpack:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return Unmarshal(data)
	case FormatCBOR:
		if err := cbor.NewDecoder(r).Decode(&s); err != nil {
			return nil, fmt.Errorf("failed to decode cbor: %w", err)
		}
	default:
		return nil, fmt.Errorf("format %q cannot be decoded", f)
	}
	return &s, nil
}

// Marshal encodes s with msgpack, keyed by the json field names. This is the
// form kept in the result cache.
func Marshal(s *Summary) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode msgpack: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a summary produced by Marshal.
func Unmarshal(data []byte) (*Summary, error) {
	var s Summary
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode msgpack: %w", err)
	}
	return &s, nil
}

// WriteText renders s for humans.
func WriteText(w io.Writer, s *Summary) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "method %s (registers %d, max stack %d)\n", s.Method, s.Registers, s.MaxStack)

	out := make(map[int][]Edge)
	for _, e := range s.Edges {
		out[e.From] = append(out[e.From], e)
	}
	for _, b := range s.Blocks {
		fmt.Fprintf(&sb, "\nblock %d..%d post %d", b.PC, b.End-1, b.Postorder)
		if b.IDom >= 0 && b.IDom != b.PC {
			fmt.Fprintf(&sb, " idom %d", b.IDom)
		}
		if len(b.Lines) > 0 {
			fmt.Fprintf(&sb, " lines %v", b.Lines)
		}
		if !b.Relevant {
			sb.WriteString(" trampoline")
		}
		sb.WriteString("\n")
		for _, e := range out[b.PC] {
			fmt.Fprintf(&sb, "  -> %d %s", e.To, e.Kind)
			if e.Label != "" {
				fmt.Fprintf(&sb, " [%s]", e.Label)
			}
			if e.Back {
				sb.WriteString(" back")
			}
			sb.WriteString("\n")
		}
	}

	for _, sub := range s.Subs {
		fmt.Fprintf(&sb, "\nsubroutine %d calls %v rets %v writes %v\n", sub.PC, sub.Calls, sub.Rets, sub.Writes)
	}

	if len(s.Frames) > 0 {
		sb.WriteString("\nframes\n")
		for _, fr := range s.Frames {
			fmt.Fprintf(&sb, "  %4d [%s", fr.PC, strings.Join(fr.Registers, " "))
			if len(fr.Stack) > 0 {
				fmt.Fprintf(&sb, " | %s", strings.Join(fr.Stack, " "))
			}
			sb.WriteString("]\n")
		}
	}

	if len(s.Diagnostics) > 0 {
		sb.WriteString("\ndiagnostics\n")
		for _, d := range s.Diagnostics {
			fmt.Fprintf(&sb, "  %s\n", d)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
