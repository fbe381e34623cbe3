package refine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONObject finds the first balanced JSON object in model output.
// Models wrap payloads in markdown fences or prose; we scan for the opening
// brace and walk to its balanced close, respecting string literals.
func ExtractJSONObject(text string) ([]byte, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in response: %w", ErrMalformedResponse)
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return []byte(text[start : i+1]), nil
			}
		}
	}
	return nil, fmt.Errorf("unbalanced JSON object in response: %w", ErrMalformedResponse)
}

// refinement is the decoded model payload.
type refinement struct {
	Material   string            `json:"material"`
	Attributes map[string]string `json:"attributes"`
	Summary    string            `json:"summary,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
}

// SanitizeRefinement drops empty/placeholder attribute values and trims
// whitespace so a slightly sloppy but usable payload still validates.
func SanitizeRefinement(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var dropped []string
	if attrs, ok := m["attributes"].(map[string]any); ok {
		clean := make(map[string]any, len(attrs))
		for k, v := range attrs {
			s, isStr := v.(string)
			if !isStr {
				// coerce scalars the model sent as numbers
				if v == nil {
					dropped = append(dropped, k+"(null)")
					continue
				}
				s = fmt.Sprintf("%v", v)
			}
			s = strings.TrimSpace(s)
			if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") || strings.EqualFold(s, "not specified") {
				dropped = append(dropped, k+"(empty)")
				continue
			}
			clean[k] = s
		}
		m["attributes"] = clean
	}
	if v, ok := m["material"].(string); ok {
		m["material"] = strings.TrimSpace(v)
	}
	if v, ok := m["confidence"].(string); ok {
		// some models quote the number; drop rather than fail validation
		delete(m, "confidence")
		dropped = append(dropped, "confidence(string:"+v+")")
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, dropped, nil
}

// ParseRefinement runs the full lenient pipeline over raw model text:
// locate the object, sanitize it, validate against the schema, decode.
func ParseRefinement(text string) (*refinement, error) {
	raw, err := ExtractJSONObject(text)
	if err != nil {
		return nil, err
	}
	clean, _, err := SanitizeRefinement(raw)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrMalformedResponse)
	}
	if err := ValidateJSONAgainstSchema(BuildRefinementJSONSchema(), clean); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrMalformedResponse)
	}
	var ref refinement
	if err := json.Unmarshal(clean, &ref); err != nil {
		return nil, fmt.Errorf("decode refinement: %w", ErrMalformedResponse)
	}
	return &ref, nil
}
