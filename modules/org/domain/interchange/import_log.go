package interchange

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrImportLogNotFound = errors.New("import log not found")

type ImportLog struct {
	ID         uuid.UUID  `json:"id"`
	ChartID    *uuid.UUID `json:"chart_id,omitempty"`
	ImportedBy uuid.UUID  `json:"imported_by"`
	Source     string     `json:"source"`
	FileName   string     `json:"file_name,omitempty"`
	Processed  int        `json:"records_processed"`
	Succeeded  int        `json:"records_success"`
	Failed     int        `json:"records_errors"`
	Errors     []RowError `json:"error_log"`
	CreatedAt  time.Time  `json:"created_at"`
}

type ImportLogRepository interface {
	Create(ctx context.Context, l *ImportLog) error
	Get(ctx context.Context, id uuid.UUID) (*ImportLog, error)
	ListByChart(ctx context.Context, chartID uuid.UUID) ([]*ImportLog, error)
}
