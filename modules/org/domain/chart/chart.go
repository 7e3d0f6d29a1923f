package chart

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusDraft           Status = "draft"
	StatusSandbox         Status = "sandbox"
	StatusPendingApproval Status = "pending_approval"
	StatusActive          Status = "active"
	StatusArchived        Status = "archived"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusSandbox, StatusPendingApproval, StatusActive, StatusArchived:
		return st, nil
	default:
		return "", fmt.Errorf("unknown chart status %q", s)
	}
}

// transitions lists every status change a chart may make.
var transitions = map[Status][]Status{
	StatusDraft:           {StatusActive},
	StatusActive:          {StatusArchived},
	StatusArchived:        {StatusActive},
	StatusSandbox:         {StatusPendingApproval},
	StatusPendingApproval: {StatusActive, StatusSandbox},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Provenance records where an imported chart came from.
type Provenance struct {
	Source      string     `json:"source"`
	FileName    string     `json:"file_name,omitempty"`
	Processed   int        `json:"processed"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	ImportLogID *uuid.UUID `json:"import_log_id,omitempty"`
}

type Chart struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	Department    string      `json:"department"`
	Description   string      `json:"description"`
	Data          Data        `json:"chart_data"`
	Status        Status      `json:"status"`
	Version       string      `json:"version"`
	IsSandbox     bool        `json:"is_sandbox"`
	ParentID      *uuid.UUID  `json:"parent_chart_id,omitempty"`
	RootID        uuid.UUID   `json:"root_chart_id"`
	Provenance    *Provenance `json:"import_provenance,omitempty"`
	CreatedBy     uuid.UUID   `json:"created_by"`
	ApprovedBy    *uuid.UUID  `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time  `json:"approved_at,omitempty"`
	Justification string      `json:"change_justification,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// New returns a draft chart at the initial version.
func New(name, department, description string, data Data, actor uuid.UUID, now time.Time) (*Chart, error) {
	name = strings.TrimSpace(name)
	department = strings.TrimSpace(department)
	if name == "" || department == "" {
		return nil, fmt.Errorf("%w: name and department are required", ErrInvalidData)
	}
	data.normalize()
	if err := data.Validate(); err != nil {
		return nil, err
	}
	id := uuid.New()
	return &Chart{
		ID:          id,
		Name:        name,
		Department:  department,
		Description: description,
		Data:        data.Clone(),
		Status:      StatusDraft,
		Version:     InitialVersion,
		RootID:      id,
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (c *Chart) transition(next Status, now time.Time) error {
	if !c.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, next)
	}
	c.Status = next
	c.UpdatedAt = now
	return nil
}

// Activate moves a draft, or an archived version being rolled back to, into
// the active status. Archiving the department's previous active chart is the
// caller's job and must happen in the same transaction.
func (c *Chart) Activate(now time.Time) error {
	if c.IsSandbox {
		return fmt.Errorf("%w: sandboxes are activated by approval", ErrInvalidTransition)
	}
	return c.transition(StatusActive, now)
}

func (c *Chart) Archive(now time.Time) error {
	return c.transition(StatusArchived, now)
}

// NewSandbox clones c into an editable sandbox whose parent is c.
func (c *Chart) NewSandbox(actor uuid.UUID, nameSuffix string, now time.Time) (*Chart, error) {
	if c.IsSandbox {
		return nil, ErrCloneOfSandbox
	}
	if nameSuffix == "" {
		nameSuffix = "Sandbox"
	}
	parent := c.ID
	root := c.RootID
	if root == uuid.Nil {
		root = c.ID
	}
	return &Chart{
		ID:          uuid.New(),
		Name:        fmt.Sprintf("%s - %s", c.Name, nameSuffix),
		Department:  c.Department,
		Description: c.Description,
		Data:        c.Data.Clone(),
		Status:      StatusSandbox,
		Version:     SandboxVersion(c.Version),
		IsSandbox:   true,
		ParentID:    &parent,
		RootID:      root,
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ReplaceData swaps the payload of a sandbox that is still being edited.
func (c *Chart) ReplaceData(data Data, now time.Time) error {
	if !c.IsSandbox {
		return ErrNotSandbox
	}
	if c.Status != StatusSandbox {
		return fmt.Errorf("%w: %s", ErrNotEditable, c.Status)
	}
	data.normalize()
	if err := data.Validate(); err != nil {
		return err
	}
	c.Data = data.Clone()
	c.UpdatedAt = now
	return nil
}

func (c *Chart) SubmitForApproval(now time.Time) error {
	if !c.IsSandbox {
		return ErrNotSandbox
	}
	return c.transition(StatusPendingApproval, now)
}

// ReturnToSandbox reopens a sandbox for editing after its approval request
// was rejected or cancelled.
func (c *Chart) ReturnToSandbox(now time.Time) error {
	if !c.IsSandbox {
		return ErrNotSandbox
	}
	return c.transition(StatusSandbox, now)
}

// Publish turns an approved sandbox into the department's active version.
func (c *Chart) Publish(approver uuid.UUID, justification, version string, now time.Time) error {
	if !c.IsSandbox {
		return ErrNotSandbox
	}
	if err := c.transition(StatusActive, now); err != nil {
		return err
	}
	c.IsSandbox = false
	c.Version = version
	c.ApprovedBy = &approver
	approvedAt := now
	c.ApprovedAt = &approvedAt
	c.Justification = justification
	return nil
}
