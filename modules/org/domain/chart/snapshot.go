package chart

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const TagSandboxInitial = "sandbox-initial"

const tagLayout = "20060102-150405"

// AutoTag labels the snapshot of the data a sandbox edit replaces.
func AutoTag(now time.Time) string { return "auto-" + now.UTC().Format(tagLayout) }

// SaveTag labels the snapshot of the data a sandbox edit writes.
func SaveTag(now time.Time) string { return "save-" + now.UTC().Format(tagLayout) }

// Snapshot is an immutable copy of a chart's data. Patch, when present, is
// the RFC 6902 patch from the previous snapshot of the same edit.
type Snapshot struct {
	ID        uuid.UUID       `json:"id"`
	ChartID   uuid.UUID       `json:"chart_id"`
	Tag       string          `json:"version_tag"`
	Notes     string          `json:"notes"`
	Data      Data            `json:"data"`
	Patch     json.RawMessage `json:"patch,omitempty"`
	CreatedBy uuid.UUID       `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewSnapshot(chartID uuid.UUID, tag, notes string, data Data, actor uuid.UUID, now time.Time) *Snapshot {
	return &Snapshot{
		ID:        uuid.New(),
		ChartID:   chartID,
		Tag:       tag,
		Notes:     notes,
		Data:      data.Clone(),
		CreatedBy: actor,
		CreatedAt: now,
	}
}
