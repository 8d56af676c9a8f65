package conversation

import "testing"

func TestParseResponse(t *testing.T) {
	t.Run("PlainJSON", func(t *testing.T) {
		p := ParseResponse(`{"intent": "greeting", "reply": "Hey!", "data": {"x": 1}}`)
		if p.Intent != "greeting" || p.Reply != "Hey!" {
			t.Errorf("unexpected parse: %+v", p)
		}
		if p.Data["x"] != float64(1) {
			t.Errorf("expected data preserved, got %v", p.Data)
		}
	})

	t.Run("FencedJSON", func(t *testing.T) {
		p := ParseResponse("```json\n{\"intent\": \"accept_plan\", \"reply\": \"Done\"}\n```")
		if p.Intent != "accept_plan" || p.Reply != "Done" {
			t.Errorf("unexpected parse: %+v", p)
		}
	})

	t.Run("BareFence", func(t *testing.T) {
		p := ParseResponse("```\n{\"intent\": \"skip_day\", \"reply\": \"ok\"}\n```")
		if p.Intent != "skip_day" {
			t.Errorf("unexpected intent: %s", p.Intent)
		}
	})

	t.Run("MalformedFallsBack", func(t *testing.T) {
		raw := "Sure! I'd suggest pasta tonight."
		p := ParseResponse(raw)
		if p.Intent != "unknown" {
			t.Errorf("expected unknown intent, got %s", p.Intent)
		}
		if p.Reply != raw {
			t.Errorf("expected raw text as reply, got %q", p.Reply)
		}
	})

	t.Run("MissingIntentFallsBack", func(t *testing.T) {
		p := ParseResponse(`{"reply": "hello"}`)
		if p.Intent != "unknown" || p.Reply != "hello" {
			t.Errorf("unexpected parse: %+v", p)
		}
	})

	t.Run("MissingReplyUsesRaw", func(t *testing.T) {
		raw := `{"intent": "greeting"}`
		p := ParseResponse(raw)
		if p.Intent != "greeting" || p.Reply != raw {
			t.Errorf("unexpected parse: %+v", p)
		}
	})
}
