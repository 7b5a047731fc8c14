// Package materials turns raw assistant output into typed material bodies.
package materials

import (
	"encoding/json"
	"fmt"
	"strings"

	"material-studio-backend/internal/models"

	"github.com/google/uuid"
)

// payload holds the recognized fields of the JSON object the system instruction
// asks the model to return.
type payload struct {
	Title         string
	SellingPoints []string
	Atmosphere    string
	VideoScript   string
}

// Derive parses an assistant message's content into material bodies. It never fails:
// content that does not parse yields a single DegradedBody holding the raw text.
// Derive is pure, so running it again on the same content yields equal bodies.
func Derive(content string) []models.MaterialBody {
	cleaned := StripCodeFence(content)

	p, ok := parse(cleaned)
	if !ok {
		return []models.MaterialBody{models.DegradedBody{Raw: cleaned}}
	}

	var bodies []models.MaterialBody
	if t := strings.TrimSpace(p.Title); t != "" {
		bodies = append(bodies, models.TitleBody{Title: t})
	}
	if points := nonEmpty(p.SellingPoints); len(points) > 0 {
		bodies = append(bodies, models.SellingPointsBody{Points: points})
	}
	if a := strings.TrimSpace(p.Atmosphere); a != "" {
		bodies = append(bodies, models.AtmosphereBody{Line: a})
	}
	if v := strings.TrimSpace(p.VideoScript); v != "" {
		bodies = append(bodies, models.VideoScriptBody{Script: v})
	}

	if len(bodies) == 0 {
		return []models.MaterialBody{models.DegradedBody{Raw: cleaned}}
	}
	return bodies
}

// StripCodeFence removes a Markdown fence wrapping content, whatever its info string,
// and surrounding whitespace. Backticks inside the fenced text are kept.
func StripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parse decodes s as a JSON object and picks out the recognized fields one by one,
// so a field of the wrong type is skipped without losing the others. When s carries
// prose around the object, the outermost {...} span is tried as well.
func parse(s string) (payload, bool) {
	fields, ok := object(s)
	if !ok {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start < 0 || end <= start {
			return payload{}, false
		}
		if fields, ok = object(s[start : end+1]); !ok {
			return payload{}, false
		}
	}

	var p payload
	p.Title = stringField(fields["title"])
	p.SellingPoints = stringList(fields["sellingPoints"])
	p.Atmosphere = stringField(fields["atmosphere"])
	p.VideoScript = stringField(fields["videoScript"])
	return p, true
}

func object(s string) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func stringField(raw json.RawMessage) string {
	var v string
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return ""
	}
	return v
}

// stringList keeps the string elements of a JSON array and drops the rest.
func stringList(raw json.RawMessage) []string {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		if v := stringField(item); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func nonEmpty(points []string) []string {
	var out []string
	for _, p := range points {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Build encodes bodies as material records of one assistant message, in order.
func Build(conversationID, messageID uuid.UUID, bodies []models.MaterialBody) ([]models.Material, error) {
	out := make([]models.Material, 0, len(bodies))
	for _, body := range bodies {
		m, err := models.NewMaterial(conversationID, messageID, body)
		if err != nil {
			return nil, fmt.Errorf("build %s material: %w", body.MaterialType(), err)
		}
		out = append(out, m)
	}
	return out, nil
}
