package marksheet

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

// SourceOverride marks a row whose marks were entered by hand.
const SourceOverride = "override"

// Template lists the subject slots of a marksheet.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ClassName string    `json:"className"`
	Slots     []Slot    `json:"slots"`
	CreatedAt time.Time `json:"createdAt"` // UTC
	UpdatedAt time.Time `json:"updatedAt"` // UTC
}

// TemplateDef contains information needed to create or replace a Template.
type TemplateDef struct {
	Name      string `json:"name" validate:"required,notblank"`
	ClassName string `json:"className"`
	Slots     []Slot `json:"slots" validate:"required,min=1,dive"`
}

func (def *TemplateDef) Validate(validate *validator.Validate) error {
	def.Name = core.CleanString(def.Name)
	def.ClassName = core.CleanString(def.ClassName)
	for i := range def.Slots {
		def.Slots[i].ID = core.CleanString(def.Slots[i].ID)
		def.Slots[i].Name = core.CleanString(def.Slots[i].Name)
	}
	if err := validate.Struct(def); err != nil {
		return err
	}

	seen := make(map[string]bool, len(def.Slots))
	for i, slot := range def.Slots {
		key := nameKey(slot.Name)
		if seen[key] {
			return core.NewValidationError(ErrDuplicateSlot, core.FieldError{
				Field: "slots[" + strconv.Itoa(i) + "].name",
				Error: ErrDuplicateSlot.Error(),
			})
		}
		seen[key] = true
	}
	return nil
}

// Request names the template and the student a marksheet is built for.
type Request struct {
	TemplateID string `json:"templateId" validate:"required,notblank"`
	StudentID  string `json:"studentId" validate:"required,notblank"`
}

func (r *Request) Validate(validate *validator.Validate) error {
	r.TemplateID = core.CleanString(r.TemplateID)
	r.StudentID = core.CleanString(r.StudentID)
	return validate.Struct(r)
}

// GenerateRequest adds hand-entered marks, keyed by slot name, to a Request.
type GenerateRequest struct {
	Request
	Overrides map[string]float64 `json:"overrides"`
}

// Preview is the outcome of resolving every slot of a template for one student.
type Preview struct {
	TemplateID string         `json:"templateId"`
	StudentID  string         `json:"studentId"`
	Slots      []ResolvedSlot `json:"slots"`
}

// Unresolved returns the slots left unset.
func (p Preview) Unresolved() []ResolvedSlot {
	var slots []ResolvedSlot
	for _, rs := range p.Slots {
		if !rs.Resolved() {
			slots = append(slots, rs)
		}
	}
	return slots
}

// Marksheet is a generated, stored report card.
type Marksheet struct {
	ID           string    `json:"id"`
	TemplateID   string    `json:"templateId"`
	TemplateName string    `json:"templateName"`
	ClassName    string    `json:"className"`
	StudentID    string    `json:"studentId"`
	StudentName  string    `json:"studentName"`
	Rows         []Row     `json:"rows"`
	Obtained     float64   `json:"obtained"`
	Maximum      float64   `json:"maximum"`
	Percentage   float64   `json:"percentage"`
	CreatedAt    time.Time `json:"createdAt"` // UTC
}

type Row struct {
	Subject    string  `json:"subject"`
	SubjectID  string  `json:"subjectId,omitempty"`
	Obtained   float64 `json:"obtained"`
	Maximum    float64 `json:"maximum"`
	Percentage float64 `json:"percentage"`
	Source     string  `json:"source"` // matcher strategy or "override"
}

type ListOptions struct {
	StudentID  string `query:"studentId"`
	TemplateID string `query:"templateId"`
}
