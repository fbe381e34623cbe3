package refine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const promptInstructions = `You are reviewing excerpts from a construction material specification document.
Clean up and complete the attributes extracted for the material below. Correct obvious
extraction noise, keep values verbatim from the passages where possible, and add a short
summary. Do not invent values that the passages do not support.

Respond with a single JSON object and nothing else, matching this schema:
`

// BuildPrompt renders the refinement prompt for one material. Output length
// never exceeds maxBytes (when positive): passages are dropped from the tail
// first, and as a last resort the prompt is hard-truncated.
func BuildPrompt(material string, attrs map[string]string, passages []string, maxBytes int) string {
	var b strings.Builder
	b.WriteString(promptInstructions)
	schema, _ := json.Marshal(BuildRefinementJSONSchema())
	b.Write(schema)
	b.WriteString("\n\nMaterial: ")
	b.WriteString(material)
	b.WriteString("\n\nRule-extracted attributes:\n")

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		b.WriteString("(none)\n")
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, attrs[k])
	}

	b.WriteString("\nSource passages:\n")
	header := b.String()

	var sb strings.Builder
	sb.WriteString(header)
	for i, p := range passages {
		line := fmt.Sprintf("%d. %s\n", i+1, strings.TrimSpace(p))
		if maxBytes > 0 && sb.Len()+len(line) > maxBytes {
			break
		}
		sb.WriteString(line)
	}

	out := sb.String()
	if maxBytes > 0 && len(out) > maxBytes {
		out = out[:maxBytes]
	}
	return out
}
