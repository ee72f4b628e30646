package entities

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Known structured report fields.
const (
	FieldIncidentSummary = "incident_summary"
	FieldRootCause       = "root_cause"
	FieldImpact          = "impact"
	FieldTimeline        = "timeline"
	FieldSolution        = "solution"
	FieldParticipants    = "participants"
)

// Report is the structured incident record produced by synthesis.
// A nil field is absent; a non-nil field is set, even when it points at "".
// Fields the model returns beyond the known set are preserved in Extra.
type Report struct {
	IncidentSummary *string
	RootCause       *string
	Impact          *string
	Timeline        *string
	Solution        *string
	Participants    *string
	Extra           map[string]json.RawMessage
}

// ReportFromText wraps raw model output as a minimal record holding only a summary.
func ReportFromText(raw string) Report {
	return Report{IncidentSummary: Text(raw)}
}

// Text returns a pointer to s, for building reports literally.
func Text(s string) *string {
	return &s
}

func (r *Report) slot(name string) **string {
	switch name {
	case FieldIncidentSummary:
		return &r.IncidentSummary
	case FieldRootCause:
		return &r.RootCause
	case FieldImpact:
		return &r.Impact
	case FieldTimeline:
		return &r.Timeline
	case FieldSolution:
		return &r.Solution
	case FieldParticipants:
		return &r.Participants
	}
	return nil
}

var knownFields = []string{
	FieldIncidentSummary,
	FieldRootCause,
	FieldImpact,
	FieldTimeline,
	FieldSolution,
	FieldParticipants,
}

// Get returns the text of a known field, or "" when it is absent.
func (r Report) Get(name string) string {
	p := r.slot(name)
	if p == nil || *p == nil {
		return ""
	}
	return **p
}

// MergeReports is the field-wise reducer used for record updates: every field set in
// update overrides base, everything else in base is kept. Neither argument is mutated.
func MergeReports(base, update Report) Report {
	merged := base
	for _, name := range knownFields {
		if p := update.slot(name); *p != nil {
			*merged.slot(name) = Text(**p)
		}
	}
	if len(base.Extra) > 0 || len(update.Extra) > 0 {
		merged.Extra = make(map[string]json.RawMessage, len(base.Extra)+len(update.Extra))
		for k, v := range base.Extra {
			merged.Extra[k] = v
		}
		for k, v := range update.Extra {
			merged.Extra[k] = v
		}
	}
	return merged
}

// MarshalJSON emits only set fields, so the encoding doubles as a partial update document.
func (r Report) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(knownFields)+len(r.Extra))
	for k, v := range r.Extra {
		out[k] = v
	}
	for _, name := range knownFields {
		if p := r.slot(name); *p != nil {
			out[name] = **p
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts any JSON object. Known fields holding non-string values
// (lists of steps, nested objects) are flattened to text; null leaves a field unset.
func (r *Report) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Report{}
	for key, value := range raw {
		p := r.slot(key)
		if p == nil {
			if r.Extra == nil {
				r.Extra = make(map[string]json.RawMessage)
			}
			r.Extra[key] = value
			continue
		}
		if text, ok := flattenText(value); ok {
			*p = Text(text)
		}
	}
	return nil
}

// Fields returns the set fields as a generic map, suitable for "$set"-style stores.
func (r Report) Fields() map[string]any {
	fields := make(map[string]any, len(knownFields)+len(r.Extra))
	for k, v := range r.Extra {
		var decoded any
		if err := json.Unmarshal(v, &decoded); err == nil {
			fields[k] = decoded
		}
	}
	for _, name := range knownFields {
		if p := r.slot(name); *p != nil {
			fields[name] = **p
		}
	}
	return fields
}

func flattenText(value json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", false
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false
		}
		return s, true
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return "", false
		}
		lines := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := flattenText(item); ok {
				lines = append(lines, s)
			}
		}
		return strings.Join(lines, "\n"), true
	}
	return string(trimmed), true
}

// DecodeResult is the outcome of decoding a model response: either a structured
// record, or the raw text that failed to decode together with the reason.
type DecodeResult struct {
	Structured *Report
	Raw        string
	Err        error
}

// Record returns the structured record, converting raw text into a summary-only record.
func (d DecodeResult) Record() Report {
	if d.Structured != nil {
		return *d.Structured
	}
	return ReportFromText(d.Raw)
}

// DecodeReport parses a model response as a JSON object. A surrounding Markdown code
// fence is tolerated. Anything that is not a JSON object yields a raw-text result.
func DecodeReport(raw string) DecodeResult {
	body := stripCodeFence(strings.TrimSpace(raw))
	if !strings.HasPrefix(body, "{") {
		return DecodeResult{Raw: raw, Err: errNotObject}
	}
	var report Report
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return DecodeResult{Raw: raw, Err: err}
	}
	return DecodeResult{Structured: &report, Raw: raw}
}

type decodeError string

func (e decodeError) Error() string { return string(e) }

const errNotObject = decodeError("response is not a JSON object")

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := s[3 : len(s)-3]
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		// Drop the info string ("json") on the opening fence line.
		inner = inner[nl+1:]
	}
	return strings.TrimSpace(inner)
}
