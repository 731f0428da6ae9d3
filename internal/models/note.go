// Package models defines the domain types for autolink.
package models

import "fmt"

// Document is one raw note handed to the linker: a vault-relative path and
// its full content.
type Document struct {
	Path    string `json:"path"`
	Content []byte `json:"-"`
}

// Span is a region of a note's raw content that may contain links.
// Start and End are byte offsets into the raw content; Text is the content
// between them.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Note is a successfully parsed Markdown file. It is immutable once built.
type Note struct {
	Path    string   `json:"path"`
	Title   string   `json:"title"`
	Aliases []string `json:"aliases,omitempty"`
	Spans   []Span   `json:"-"`
}

// Identities returns the title followed by the declared aliases.
func (n *Note) Identities() []string {
	out := make([]string, 0, len(n.Aliases)+1)
	out = append(out, n.Title)
	return append(out, n.Aliases...)
}

// ParseFailure records a note whose content could not be parsed.
type ParseFailure struct {
	Path  string
	Cause error
}

func (f *ParseFailure) Error() string {
	return fmt.Sprintf("parse %s: %v", f.Path, f.Cause)
}

func (f *ParseFailure) Unwrap() error {
	return f.Cause
}

// ParseOutcome holds exactly one of Note or Failure.
type ParseOutcome struct {
	Note    *Note
	Failure *ParseFailure
}

// Path returns the path of the note or of the failure.
func (o ParseOutcome) Path() string {
	if o.Note != nil {
		return o.Note.Path
	}
	if o.Failure != nil {
		return o.Failure.Path
	}
	return ""
}

// Reference is one mention of a note's title or alias inside a note.
// Start and End are byte offsets into the source note's raw content.
type Reference struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	MatchedText string `json:"matched_text"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
}

// Result is the output of one resolution run.
type Result struct {
	References  []Reference `json:"references"`
	FailedPaths []string    `json:"failed_paths"`

	// Notes and Failures carry the parse outcomes for hosts that persist
	// them. They are not part of the wire format.
	Notes    []*Note         `json:"-"`
	Failures []*ParseFailure `json:"-"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
}
