// Package coach turns a coaching transcript into a next-session route plan
// request and normalizes the model's answer.
package coach

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"atelier/pkg/jsonrepair"
)

// Domain is one of the four Gallup strength domains.
type Domain string

const (
	Executing            Domain = "Executing"
	Influencing          Domain = "Influencing"
	RelationshipBuilding Domain = "Relationship Building"
	StrategicThinking    Domain = "Strategic Thinking"
)

const (
	MinRoutes     = 2
	MaxRoutes     = 3
	DefaultRoutes = 3
)

// MetaMissingNote is added to notes when the model omitted meta entirely.
const MetaMissingNote = "meta 缺失：已自动补全"

// NormalizeDomain maps free text in English or Chinese to a Domain. Anything
// that is not a recognizable string yields nil.
func NormalizeDomain(v any) *Domain {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}

	var d Domain
	switch {
	case containsAny(s, "relationship", "关系", "建立"):
		d = RelationshipBuilding
	case containsAny(s, "execut", "执行"):
		d = Executing
	case containsAny(s, "influenc", "影响"):
		d = Influencing
	case containsAny(s, "strateg", "战略", "思维"):
		d = StrategicThinking
	default:
		return nil
	}
	return &d
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ClampRouteCount coerces a loosely typed count into [MinRoutes, MaxRoutes].
// Missing, zero or non-numeric values fall back to DefaultRoutes.
func ClampRouteCount(v any) int {
	var n float64
	switch v := v.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case json.Number:
		n, _ = v.Float64()
	case string:
		n, _ = strconv.ParseFloat(strings.TrimSpace(v), 64)
	case bool:
		if v {
			n = 1
		}
	}
	if n == 0 || math.IsNaN(n) {
		n = DefaultRoutes
	}
	return int(max(MinRoutes, min(MaxRoutes, n)))
}

var themeSplitRX = regexp.MustCompile(`[，,\n]`)

// Texts decodes either a single string or an array, keeping only the strings.
type Texts []string

func (t *Texts) UnmarshalJSON(b []byte) error {
	*t = nil
	if string(b) == "null" {
		return nil
	}
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*t = Texts{single}
		return nil
	}
	var many []any
	if err := json.Unmarshal(b, &many); err != nil {
		return nil
	}
	for _, v := range many {
		if s, ok := v.(string); ok {
			*t = append(*t, s)
		}
	}
	return nil
}

// Themes decodes a list of strength themes given as an array or as a single
// string separated by commas (ASCII or full width) or newlines.
type Themes []string

func (t *Themes) UnmarshalJSON(b []byte) error {
	*t = Themes{}
	if string(b) == "null" {
		return nil
	}
	var raw Texts
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		raw = themeSplitRX.Split(single, -1)
	} else if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			*t = append(*t, s)
		}
	}
	return nil
}

// Request is the browser payload for a route plan.
type Request struct {
	Material        Texts  `json:"material"`
	Materials       Texts  `json:"materials"`
	PDFText         Texts  `json:"pdfText"`
	FileIDs         Texts  `json:"fileIds"`
	ClientDomain    any    `json:"clientDomain"`
	ClientTopThemes Themes `json:"clientTopThemes"`
	RouteCount      any    `json:"routeCount"`
	APIKey          string `json:"apiKey"`
	Model           string `json:"model"`
}

// Text joins every non-blank material block with a blank line.
func (r *Request) Text() string {
	var blocks []string
	for _, group := range []Texts{r.Material, r.Materials, r.PDFText} {
		for _, s := range group {
			if strings.TrimSpace(s) != "" {
				blocks = append(blocks, s)
			}
		}
	}
	return strings.Join(blocks, "\n\n")
}

// Files returns the trimmed, non-blank uploaded file ids.
func (r *Request) Files() []string {
	var ids []string
	for _, id := range r.FileIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Empty reports whether the request carries neither text nor files.
func (r *Request) Empty() bool {
	return r.Text() == "" && len(r.Files()) == 0
}

type Profile struct {
	Domain    *Domain  `json:"domain"`
	TopThemes []string `json:"top_themes"`
}

// Input is the user turn sent to the model, serialized as JSON text.
type Input struct {
	Material      string  `json:"material"`
	ClientProfile Profile `json:"client_profile"`
	Instruction   string  `json:"instruction"`
}

// Input builds the model input for this request.
func (r *Request) Input() Input {
	themes := []string(r.ClientTopThemes)
	if themes == nil {
		themes = []string{}
	}
	return Input{
		Material: r.Text(),
		ClientProfile: Profile{
			Domain:    NormalizeDomain(r.ClientDomain),
			TopThemes: themes,
		},
		Instruction: Instruction(ClampRouteCount(r.RouteCount)),
	}
}

// JSON renders the input without HTML escaping.
func (in Input) JSON() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(in); err != nil {
		return "", fmt.Errorf("encoding coach input: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Extract recovers the route plan from model output and normalizes its meta.
func Extract(text string) (map[string]any, error) {
	obj, err := jsonrepair.Decode(text, "routes")
	if err != nil {
		return nil, err
	}
	NormalizeMeta(obj)
	return obj, nil
}

// NormalizeMeta guarantees meta exists with routeCount equal to the number of
// routes, array-valued topThemes and notes, and a domainUsed that is either a
// string or null.
func NormalizeMeta(obj map[string]any) {
	routes, _ := obj["routes"].([]any)

	meta, ok := obj["meta"].(map[string]any)
	if !ok {
		obj["meta"] = map[string]any{
			"routeCount": len(routes),
			"domainUsed": nil,
			"topThemes":  []any{},
			"notes":      []any{MetaMissingNote},
		}
		return
	}

	meta["routeCount"] = len(routes)
	if _, ok := meta["topThemes"].([]any); !ok {
		meta["topThemes"] = []any{}
	}
	if _, ok := meta["notes"].([]any); !ok {
		meta["notes"] = []any{}
	}
	if _, ok := meta["domainUsed"].(string); !ok {
		meta["domainUsed"] = nil
	}
}
