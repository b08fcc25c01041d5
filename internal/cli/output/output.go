// Package output renders command results as a table, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a value of the global -o flag.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts table, json, yaml or yml, case-insensitively. An empty
// string means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format %q (valid: table, json, yaml)", s)
	}
}

// Print writes data as JSON or YAML. For FormatTable it calls table instead,
// since a table needs a renderer chosen by the command.
func Print(w io.Writer, f Format, data any, table func(io.Writer) error) error {
	switch f {
	case FormatJSON:
		return JSON(w, data)
	case FormatYAML:
		return YAML(w, data)
	case FormatTable:
		if table == nil {
			return JSON(w, data)
		}
		return table(w)
	default:
		return fmt.Errorf("unknown output format %q", f)
	}
}

// JSON writes indented JSON.
func JSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// YAML writes a single YAML document with two-space indentation.
func YAML(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

const (
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiReset  = "\033[0m"
)

// Success prints msg in green when color is set.
func Success(w io.Writer, msg string, color bool) {
	printColored(w, ansiGreen, msg, color)
}

// Warning prints msg in yellow when color is set.
func Warning(w io.Writer, msg string, color bool) {
	printColored(w, ansiYellow, msg, color)
}

func printColored(w io.Writer, code, msg string, color bool) {
	if color {
		_, _ = fmt.Fprintf(w, "%s%s%s\n", code, msg, ansiReset)
		return
	}
	_, _ = fmt.Fprintln(w, msg)
}
