package mcpserver

// NoteFormatContract describes the canonical Markdown note format that
// LLM consumers should follow when creating or updating notes.
const NoteFormatContract = `# Dagaz Note Format Contract

Every Markdown note stored in a Dagaz workspace follows this structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title           # synthesized from the file name if omitted
created_timestamp: 2025-01-15 0930    # synthesized on first write if omitted
modified_timestamp: 2025-01-15 0930   # synthesized on first write if omitted
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. **Front matter is optional on input.** If a new note is written without it,
   Dagaz prepends a YAML block with ` + "`" + `title` + "`" + `, ` + "`" + `created_timestamp` + "`" + ` and
   ` + "`" + `modified_timestamp` + "`" + ` (timestamps use ` + "`" + `YYYY-MM-DD HHmm` + "`" + `).
2. **Existing front matter is preserved.** When a note is rewritten without a
   front matter block, the previous note's block is carried forward verbatim.
3. **Custom keys are allowed.** Any YAML mapping is accepted; unknown keys pass
   through untouched and are searchable.
4. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes. Paths may never
   escape the workspace or enter its metadata directory.
5. **Encoding** is UTF-8.
6. **Versioning:** every content-changing write snapshots the previous version.
   Use the ` + "`" + `undo_note` + "`" + ` tool to restore it; the undo itself can be undone once.

## Example

` + "```" + `markdown
---
title: Weekly standup 2025-01-20
created_timestamp: 2025-01-20 0900
modified_timestamp: 2025-01-20 0930
---

# Weekly standup 2025-01-20

Attendees: Alice, Bob.

## Action items

- Alice to review the design doc
- Bob to update the roadmap
` + "```" + `
`
