// Package normalizer turns an untrusted vision response into a validated
// material classification. Nothing in this package returns an error or
// panics on malformed input: the worst case is an uncertain "unknown"
// classification.
package normalizer

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// ParseKind tags how the fields of a response were obtained.
type ParseKind int

const (
	// ParseFailed means no field could be extracted.
	ParseFailed ParseKind = iota
	// ParseStructured means the response decoded against the JSON schema.
	ParseStructured
	// ParseFallback means fields were pulled out of free text.
	ParseFallback
)

func (k ParseKind) String() string {
	switch k {
	case ParseStructured:
		return "structured"
	case ParseFallback:
		return "fallback"
	default:
		return "failed"
	}
}

// Fields holds raw, unvalidated values as they appeared in the response.
// Numeric fields keep their literal text so that validation can tell "1"
// from "1.0" and spot a trailing percent sign.
type Fields struct {
	Material    string
	RIC         string
	Confidence  string
	Recyclable  *bool
	Description string
}

func (f Fields) empty() bool {
	return f.Material == "" && f.RIC == "" && f.Confidence == "" && f.Recyclable == nil && f.Description == ""
}

// ParseResult is the outcome of the two-stage parse.
type ParseResult struct {
	Kind   ParseKind
	Fields Fields
}

// Parse runs the strict JSON decode and, when that fails, keyword
// extraction over the free text.
func Parse(raw string) ParseResult {
	if fields, ok := decodeStructured(raw); ok {
		return ParseResult{Kind: ParseStructured, Fields: fields}
	}
	fields := extractFallback(raw)
	if fields.empty() {
		return ParseResult{Kind: ParseFailed}
	}
	return ParseResult{Kind: ParseFallback, Fields: fields}
}

type structuredResponse struct {
	MaterialType json.RawMessage `json:"material_type"`
	RICCode      json.RawMessage `json:"ric_code"`
	Confidence   json.RawMessage `json:"confidence"`
	Recyclable   json.RawMessage `json:"recyclable"`
	Description  json.RawMessage `json:"description"`
}

func decodeStructured(raw string) (Fields, bool) {
	candidate, ok := jsonObject(raw)
	if !ok {
		return Fields{}, false
	}

	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()
	var resp structuredResponse
	if err := dec.Decode(&resp); err != nil {
		return Fields{}, false
	}

	materialType, ok := jsonString(resp.MaterialType)
	if !ok || materialType == "" {
		return Fields{}, false
	}

	fields := Fields{Material: materialType}
	fields.RIC, _ = jsonScalar(resp.RICCode)
	fields.Confidence, _ = jsonScalar(resp.Confidence)
	fields.Recyclable = jsonBool(resp.Recyclable)
	fields.Description, _ = jsonString(resp.Description)
	return fields, true
}

// jsonObject strips markdown fences and returns the outermost {...} span.
func jsonObject(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func jsonString(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// jsonScalar returns the literal text of a number or a string holding one.
func jsonScalar(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	if s, ok := jsonString(raw); ok {
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}

func jsonBool(raw json.RawMessage) *bool {
	if isNull(raw) {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return &b
	}
	if s, ok := jsonString(raw); ok {
		return parseYesNo(s)
	}
	return nil
}

var (
	materialRe   = regexp.MustCompile(`(?i)\bmaterial(?:[ _-]?type)?\b["']?\s*(?:[:=]|\bis\b)\s*["']?([a-z][a-z0-9 /()-]*)`)
	typeRe       = regexp.MustCompile(`(?i)\btype\b["']?\s*[:=]\s*["']?([a-z][a-z0-9 /()-]*)`)
	ricRe        = regexp.MustCompile(`(?i)\b(?:ric(?:[ _-]?code)?|resin(?:[ _-]?identification)?[ _-]?code|recycling[ _-]?(?:code|number)|code|number)\b["']?\s*[:=#]?\s*["']?(-?\d+(?:\.\d+)?)`)
	confidenceRe = regexp.MustCompile(`(?i)\b(?:confidence|certainty)(?:[ _-]?(?:score|level))?\b["']?\s*[:=]?\s*["']?(-?\d+(?:\.\d+)?)\s*(%)?`)
	recyclableRe = regexp.MustCompile(`(?i)\b(?:is[ _-]?)?recyclable(?:[ _-]?locally)?\b["']?\s*[:=]?\s*["']?(yes|no|true|false|y|n)\b`)
	notRecycleRe = regexp.MustCompile(`(?i)\b(?:not|non)[ -]?recyclable\b`)
	descRe       = regexp.MustCompile(`(?i)\bdescription\b["']?\s*[:=]\s*["']?([^"\n]+)`)
)

func extractFallback(raw string) Fields {
	var fields Fields

	if m := materialRe.FindStringSubmatch(raw); m != nil {
		fields.Material = strings.TrimSpace(m[1])
	} else if m := typeRe.FindStringSubmatch(raw); m != nil {
		fields.Material = strings.TrimSpace(m[1])
	} else if t := MatchMaterial(raw); t.Known() {
		// Unlabeled prose: take the earliest material word anywhere.
		fields.Material = string(t)
	}

	if m := ricRe.FindStringSubmatch(raw); m != nil {
		fields.RIC = m[1]
	}

	if m := confidenceRe.FindStringSubmatch(raw); m != nil {
		fields.Confidence = m[1] + m[2]
	}

	if m := recyclableRe.FindStringSubmatch(raw); m != nil {
		fields.Recyclable = parseYesNo(m[1])
	} else if notRecycleRe.MatchString(raw) {
		no := false
		fields.Recyclable = &no
	}

	if m := descRe.FindStringSubmatch(raw); m != nil {
		fields.Description = strings.TrimSpace(m[1])
	}

	return fields
}

func parseYesNo(s string) *bool {
	var v bool
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true":
		v = true
	case "no", "n", "false":
		v = false
	default:
		return nil
	}
	return &v
}
