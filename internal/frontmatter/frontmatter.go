// Package frontmatter splits documents into a YAML metadata header and a
// body, and implements the write-path policy that carries forward or
// synthesizes metadata for note files.
package frontmatter

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const fence = "---"

// TimestampLayout is the local-time format used for synthesized
// created_timestamp and modified_timestamp values.
const TimestampLayout = "2006-01-02 1504"

// Document is the result of splitting content into metadata and body.
// When the header is present but the YAML is malformed, Meta is nil and
// RawBlock preserves the header verbatim for a lossless round-trip.
type Document struct {
	Meta           map[string]any
	Body           string
	RawBlock       string
	HasFrontMatter bool
}

// Parse splits content into front matter and body. Detection requires a
// first line of exactly "---" (after stripping a BOM) and a later "---"
// line; anything else is all body. Parse never fails.
func Parse(content string) Document {
	s := strings.TrimPrefix(content, "\ufeff")
	nl := strings.IndexByte(s, '\n')
	if nl < 0 || strings.TrimRight(s[:nl], "\r") != fence {
		return Document{Body: content}
	}
	rest := s[nl+1:]

	offset := 0
	for {
		lineEnd := strings.IndexByte(rest[offset:], '\n')
		var line string
		var next int
		if lineEnd < 0 {
			line = rest[offset:]
			next = len(rest)
		} else {
			line = rest[offset : offset+lineEnd]
			next = offset + lineEnd + 1
		}
		if strings.TrimRight(line, "\r") == fence {
			raw := rest[:offset]
			body := strings.TrimLeft(rest[next:], "\n\r")
			var meta map[string]any
			if err := yaml.Unmarshal([]byte(raw), &meta); err != nil {
				meta = nil
			}
			return Document{Meta: meta, Body: body, RawBlock: raw, HasFrontMatter: true}
		}
		if lineEnd < 0 {
			return Document{Body: content}
		}
		offset = next
	}
}

// Serialize renders metadata as a fenced YAML block. The closing fence is
// always followed by a blank line so the body stays visually separated.
func Serialize(meta map[string]any) (string, error) {
	out, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("frontmatter: marshal: %w", err)
	}
	return fence + "\n" + string(out) + fence + "\n\n", nil
}

// WrapRaw re-fences a verbatim header block that could not be parsed.
func WrapRaw(raw string) string {
	if raw != "" && !strings.HasSuffix(raw, "\n") {
		raw += "\n"
	}
	return fence + "\n" + raw + fence + "\n\n"
}

// MergeDefaults merges the three metadata sources with well-defined
// precedence: user overrides system, synthesized overrides both.
func MergeDefaults(system, user, synthesized map[string]any) map[string]any {
	out := make(map[string]any, len(system)+len(user)+len(synthesized))
	for k, v := range system {
		out[k] = v
	}
	for k, v := range user {
		out[k] = v
	}
	for k, v := range synthesized {
		out[k] = v
	}
	return out
}

// Synthesize builds the generated keys for a brand-new note.
func Synthesize(name string, now time.Time) map[string]any {
	base := filepath.Base(filepath.FromSlash(name))
	title := strings.TrimSuffix(base, filepath.Ext(base))
	ts := now.Format(TimestampLayout)
	return map[string]any{
		"title":              title,
		"created_timestamp":  ts,
		"modified_timestamp": ts,
	}
}

// Apply implements the write-path policy for note files. Content that
// already carries front matter is stored as-is. Otherwise the previous
// file's header is carried forward (structured when parseable, verbatim
// when not), and when there is no prior header a fresh one is
// synthesized from the defaults.
func Apply(name, content, previous string, system, user map[string]any, now time.Time) string {
	if Parse(content).HasFrontMatter {
		return content
	}
	if previous != "" {
		prev := Parse(previous)
		if prev.HasFrontMatter {
			if prev.Meta != nil {
				if block, err := Serialize(prev.Meta); err == nil {
					return block + content
				}
			}
			return WrapRaw(prev.RawBlock) + content
		}
	}
	block, err := Serialize(MergeDefaults(system, user, Synthesize(name, now)))
	if err != nil {
		return content
	}
	return block + content
}
