package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type MaterialType string

const (
	MaterialTitle        MaterialType = "title"
	MaterialSellingPoint MaterialType = "selling_point"
	MaterialAtmosphere   MaterialType = "atmosphere"
	MaterialVideoScript  MaterialType = "video_script"
	MaterialVideo        MaterialType = "video"
)

// SellingPointSeparator joins selling points into a material's display content.
const SellingPointSeparator = " · "

// DegradedNotice marks a material produced from model output that could not be parsed.
const DegradedNotice = "generation returned an unparseable result"

const degradedPrefix = "[" + DegradedNotice + "]"

// Material is a typed unit of marketing copy derived from an assistant message.
// The stored Type/Content/Metadata triple is the wire and database form of a MaterialBody.
type Material struct {
	UUID             uuid.UUID      `gorm:"type:uuid;primaryKey;" json:"id"`
	ConversationUUID uuid.UUID      `gorm:"type:uuid;not null;index" json:"conversation_id"`
	MessageUUID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"message_id"`
	Type             MaterialType   `gorm:"not null" json:"type"`
	Content          string         `gorm:"type:text;not null" json:"content"`
	Metadata         datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt        time.Time      `gorm:"autoCreateTime:false;index" json:"created_at"`
}

// MaterialBody is the payload of a material. Each variant carries only its own fields.
type MaterialBody interface {
	MaterialType() MaterialType
	Text() string
	metadata() map[string]any
}

type TitleBody struct{ Title string }

type SellingPointsBody struct{ Points []string }

type AtmosphereBody struct{ Line string }

type VideoScriptBody struct{ Script string }

type VideoBody struct{ URL string }

// DegradedBody stands in for all materials of a message whose content did not parse.
type DegradedBody struct{ Raw string }

func (b TitleBody) MaterialType() MaterialType { return MaterialTitle }
func (b TitleBody) Text() string               { return b.Title }
func (b TitleBody) metadata() map[string]any   { return nil }

func (b AtmosphereBody) MaterialType() MaterialType { return MaterialAtmosphere }
func (b AtmosphereBody) Text() string               { return b.Line }
func (b AtmosphereBody) metadata() map[string]any   { return nil }

func (b VideoScriptBody) MaterialType() MaterialType { return MaterialVideoScript }
func (b VideoScriptBody) Text() string               { return b.Script }
func (b VideoScriptBody) metadata() map[string]any   { return nil }

func (b VideoBody) MaterialType() MaterialType { return MaterialVideo }
func (b VideoBody) Text() string               { return b.URL }
func (b VideoBody) metadata() map[string]any   { return nil }

func (b SellingPointsBody) MaterialType() MaterialType { return MaterialSellingPoint }

func (b SellingPointsBody) Text() string {
	return strings.Join(b.Points, SellingPointSeparator)
}

func (b SellingPointsBody) metadata() map[string]any {
	points := b.Points
	if points == nil {
		points = []string{}
	}
	return map[string]any{"points": points}
}

func (b DegradedBody) MaterialType() MaterialType { return MaterialTitle }

// Text leads with the notice so the placeholder never reads as a real title.
func (b DegradedBody) Text() string {
	if b.Raw == "" {
		return degradedPrefix
	}
	return degradedPrefix + "\n\n" + b.Raw
}

func (b DegradedBody) metadata() map[string]any {
	return map[string]any{"degraded": true, "notice": DegradedNotice}
}

// IsDegraded reports whether body is the placeholder for unparseable output.
func IsDegraded(body MaterialBody) bool {
	_, ok := body.(DegradedBody)
	return ok
}

// NewMaterial encodes body into a material record owned by messageID.
// The id and creation time are assigned by the repository.
func NewMaterial(conversationID, messageID uuid.UUID, body MaterialBody) (Material, error) {
	m := Material{
		ConversationUUID: conversationID,
		MessageUUID:      messageID,
		Type:             body.MaterialType(),
		Content:          body.Text(),
	}
	if md := body.metadata(); md != nil {
		raw, err := json.Marshal(md)
		if err != nil {
			return Material{}, fmt.Errorf("encode %s metadata: %w", m.Type, err)
		}
		m.Metadata = datatypes.JSON(raw)
	}
	return m, nil
}

// Body decodes the stored record back into its variant.
func (m Material) Body() (MaterialBody, error) {
	var md struct {
		Points   []string `json:"points"`
		Degraded bool     `json:"degraded"`
	}
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &md); err != nil {
			return nil, fmt.Errorf("decode metadata of material %s: %w", m.UUID, err)
		}
	}

	switch m.Type {
	case MaterialTitle:
		if md.Degraded {
			raw := strings.TrimPrefix(m.Content, degradedPrefix)
			return DegradedBody{Raw: strings.TrimPrefix(raw, "\n\n")}, nil
		}
		return TitleBody{Title: m.Content}, nil
	case MaterialSellingPoint:
		return SellingPointsBody{Points: md.Points}, nil
	case MaterialAtmosphere:
		return AtmosphereBody{Line: m.Content}, nil
	case MaterialVideoScript:
		return VideoScriptBody{Script: m.Content}, nil
	case MaterialVideo:
		return VideoBody{URL: m.Content}, nil
	default:
		return nil, fmt.Errorf("unknown material type %q", m.Type)
	}
}

// Valid reports whether t is one of the known material types.
func (t MaterialType) Valid() bool {
	switch t {
	case MaterialTitle, MaterialSellingPoint, MaterialAtmosphere, MaterialVideoScript, MaterialVideo:
		return true
	}
	return false
}
