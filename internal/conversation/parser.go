package conversation

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Parsed is the structured envelope the model is asked to reply with.
type Parsed struct {
	Intent string         `json:"intent"`
	Reply  string         `json:"reply"`
	Data   map[string]any `json:"data,omitempty"`
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParseResponse extracts {intent, reply, data} from raw model output.
// It tolerates markdown code fences and falls back to treating the
// whole text as a plain reply with intent "unknown". It never fails:
// the user always gets some reply even from a misbehaving model.
func ParseResponse(raw string) Parsed {
	jsonStr := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(jsonStr); m != nil {
		jsonStr = strings.TrimSpace(m[1])
	}

	var parsed Parsed
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return Parsed{Intent: "unknown", Reply: raw}
	}
	if parsed.Intent == "" {
		parsed.Intent = "unknown"
	}
	if parsed.Reply == "" {
		parsed.Reply = raw
	}
	return parsed
}

// decodeInto round-trips a loosely typed data value into a concrete
// shape. Used for the data payloads inside parsed responses and tool
// arguments.
func decodeInto(v any, out any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, out)
}
