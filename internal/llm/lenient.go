package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/hjson/hjson-go/v4"
)

// Decode strategies, reported in logs so a model's habits are visible.
const (
	DecodeStrict  = "strict"
	DecodeSlice   = "brace-slice"
	DecodeRepair  = "json-repair"
	DecodeHJSON   = "hjson"
	decodeNoMatch = "none"
)

var reCodeFence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// ErrNoJSONObject is returned when nothing object-shaped could be recovered.
var ErrNoJSONObject = errors.New("no JSON object in model output")

// DecodeLenient recovers a JSON object from model output. It strips Markdown code
// fences, then tries strict JSON, the text between the first '{' and the last '}',
// a repair pass, and finally HJSON. The strategy that succeeded is returned.
func DecodeLenient(content string) (map[string]any, string, error) {
	s := stripCodeFence(strings.TrimSpace(content))
	if s == "" {
		return nil, decodeNoMatch, ErrNoJSONObject
	}

	var firstErr error
	try := func(candidate string) (map[string]any, bool) {
		var m map[string]any
		if err := json.Unmarshal([]byte(candidate), &m); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return nil, false
		}
		return m, m != nil
	}

	if m, ok := try(s); ok {
		return m, DecodeStrict, nil
	}

	sliced := s
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		sliced = s[i : j+1]
		if m, ok := try(sliced); ok {
			return m, DecodeSlice, nil
		}
	}

	if repaired, err := jsonrepair.RepairJSON(sliced); err == nil {
		if m, ok := try(repaired); ok && len(m) > 0 {
			return m, DecodeRepair, nil
		}
	}

	var hm map[string]any
	if err := hjson.Unmarshal([]byte(sliced), &hm); err == nil && len(hm) > 0 {
		return hm, DecodeHJSON, nil
	}

	if firstErr == nil {
		firstErr = ErrNoJSONObject
	}
	return nil, decodeNoMatch, fmt.Errorf("%w: %v", ErrNoJSONObject, firstErr)
}

func stripCodeFence(s string) string {
	if m := reCodeFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}
