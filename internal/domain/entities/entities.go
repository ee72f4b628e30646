// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import "time"

// Role tags a message in a conversation prompt.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one role-tagged turn sent to the language model.
// Order inside a conversation is significant: the leading system message sets behavior,
// trailing user messages carry the question.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Document is an uploaded artifact whose text has already been extracted.
type Document struct {
	Name string // Original file name, used to derive the incident ID
	Text string
}

// IncidentRecord is one incident as held by the persistent store.
// Created on first upload, merged as synthesis produces new fields, never deleted.
type IncidentRecord struct {
	ID        string
	Content   string
	Report    Report
	UpdatedAt time.Time
}

// Metadata is the flat key/value payload stored next to an embedding.
type Metadata map[string]string

// Solution returns the solution text of the entry, or "" if absent.
func (m Metadata) Solution() string {
	return m[MetadataSolution]
}

// Metadata keys written by ingestion.
const (
	MetadataSolution = "solution"
	MetadataIncident = "incident"
	MetadataSource   = "source"
)

// KnowledgeEntry is a historical incident/solution pair prior to indexing.
type KnowledgeEntry struct {
	ID       string
	Incident string
	Solution string
	Source   string            // File the entry was loaded from
	Extra    map[string]string // Additional metadata copied verbatim
}

// Metadata flattens the entry into the metadata stored alongside its embedding.
func (e KnowledgeEntry) Metadata() Metadata {
	meta := make(Metadata, len(e.Extra)+3)
	for k, v := range e.Extra {
		meta[k] = v
	}
	meta[MetadataSolution] = e.Solution
	meta[MetadataIncident] = e.Incident
	if e.Source != "" {
		meta[MetadataSource] = e.Source
	}
	return meta
}

// GlossaryEntry maps a case-folded domain term to its canonical form.
type GlossaryEntry struct {
	Term       string
	Normalized string
}

// Glossary is the ordered term-substitution table. Substitutions apply in slice order.
type Glossary []GlossaryEntry
