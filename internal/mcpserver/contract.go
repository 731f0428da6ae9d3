package mcpserver

// AliasFormatContract describes how notes declare the names other notes may
// refer to them by.
const AliasFormatContract = `# Autolink Alias Format

Autolink finds plain-text mentions of a note's title or aliases inside other
notes and can turn them into wiki links.

## Title

The title of a note is taken from, in order:

1. the ` + "`" + `title` + "`" + ` field of the YAML front matter,
2. the first level-1 heading (` + "`" + `# Title` + "`" + `),
3. the file name without the ` + "`" + `.md` + "`" + ` extension.

## Aliases

` + "```" + `markdown
---
title: Machine Learning
aliases:
  - ML
  - statistical learning
---
` + "```" + `

- ` + "`" + `aliases` + "`" + ` (or ` + "`" + `alias` + "`" + `) may be a single string or a list of strings.
- Any other value is ignored; the note keeps its title only.
- Blank and repeated aliases are dropped.

## Matching

- Mentions match whole words only: ` + "`" + `Go` + "`" + ` does not match inside ` + "`" + `Going` + "`" + `.
- Punctuation in titles is literal: ` + "`" + `C++` + "`" + ` matches ` + "`" + `C++` + "`" + ` and nothing else.
- Matching is case-insensitive unless the server is configured otherwise.
- At most one mention is linked per line of text; the leftmost one wins.
- When several notes share a name, the note whose path sorts first wins.
- Headings, code, existing links and ` + "`" + `[[wiki links]]` + "`" + ` are never matched.
- A note does not link to itself unless link_to_self is enabled.

## Inserted links

A mention of ` + "`" + `identity element` + "`" + ` resolved to ` + "`" + `math/identity.md` + "`" + ` becomes
` + "`" + `[[math/identity|identity element]]` + "`" + `.
`
