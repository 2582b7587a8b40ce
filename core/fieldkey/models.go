package fieldkey

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

// Data types
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeDate    = "date"
	TypeArray   = "array"
	TypeBoolean = "boolean"
)

// Legacy custom key types
const (
	KeyTypeManual      = "manual"
	KeyTypeCalculation = "calculation"
)

var (
	DataTypes = []string{TypeString, TypeNumber, TypeDate, TypeArray, TypeBoolean}
	KeyTypes  = []string{KeyTypeManual, KeyTypeCalculation}
)

// Field is one catalog entry: a discovered field or a legacy custom key.
type Field struct {
	ID             string    `json:"id"`
	PlaceholderKey string    `json:"placeholderKey"`
	DBFieldPath    string    `json:"dbFieldPath"`
	Label          string    `json:"label"`
	Icon           string    `json:"icon"`
	ExistsInDB     bool      `json:"existsInDb"`
	DataType       string    `json:"dataType"`
	DefaultValue   string    `json:"defaultValue"`
	KeyName        string    `json:"keyName,omitempty"`
	KeyType        string    `json:"keyType,omitempty"`
	Formula        string    `json:"formula,omitempty"`
	CreatedAt      time.Time `json:"createdAt"` // UTC
	UpdatedAt      time.Time `json:"updatedAt"` // UTC
}

// IsCustom reports whether the entry was declared by a user rather than discovered.
func (f Field) IsCustom() bool { return f.KeyType != "" }

// KeySet is a user-authored bundle of fields and calculations.
type KeySet struct {
	ID           string                 `json:"id"`
	KeyName      string                 `json:"keyName"`
	Description  string                 `json:"description"`
	ManualFields []KeySetField          `json:"manualFields"`
	TestFields   []KeySetField          `json:"testFields"`
	Calculations []Calculation          `json:"calculations"`
	Config       map[string]interface{} `json:"config"`
	CreatedAt    time.Time              `json:"createdAt"` // UTC
	UpdatedAt    time.Time              `json:"updatedAt"` // UTC
}

type KeySetField struct {
	Key      string `json:"key" validate:"required,notblank"`
	Label    string `json:"label"`
	DataType string `json:"dataType,omitempty" validate:"omitempty,datatype"`
	Source   string `json:"source,omitempty"`
}

type Calculation struct {
	Key     string `json:"key" validate:"required,notblank"`
	Label   string `json:"label"`
	Formula string `json:"formula" validate:"required,notblank"`
}

// KeySetDef contains information needed to create or replace a KeySet.
type KeySetDef struct {
	KeyName      string                 `json:"keyName" validate:"required,notblank"`
	Description  string                 `json:"description"`
	ManualFields []KeySetField          `json:"manualFields" validate:"dive"`
	TestFields   []KeySetField          `json:"testFields" validate:"dive"`
	Calculations []Calculation          `json:"calculations" validate:"dive"`
	Config       map[string]interface{} `json:"config"`
}

func (def *KeySetDef) Validate(validate *validator.Validate) error {
	def.KeyName = core.CleanString(def.KeyName)
	def.Description = core.CleanString(def.Description)
	return validate.Struct(def)
}

// LegacyKey is a single manual or calculated field saved under a key name.
type LegacyKey struct {
	Name         string `json:"name" validate:"required,notblank"`
	KeyType      string `json:"keyType" validate:"required,keytype"`
	Label        string `json:"label"`
	Formula      string `json:"formula" validate:"required_if=KeyType calculation"`
	DataType     string `json:"dataType,omitempty" validate:"omitempty,datatype"`
	DefaultValue string `json:"defaultValue"`
}

type LegacyKeys struct {
	KeyName string      `json:"keyName" validate:"required,notblank"`
	Keys    []LegacyKey `json:"keys" validate:"required,min=1,dive"`
}

func (lk *LegacyKeys) Validate(validate *validator.Validate) error {
	lk.KeyName = core.CleanString(lk.KeyName)
	for i := range lk.Keys {
		lk.Keys[i].Name = core.CleanString(lk.Keys[i].Name)
		lk.Keys[i].KeyType = core.CleanString(lk.Keys[i].KeyType, true /* lower */)
	}
	return validate.Struct(lk)
}

// FieldSelector picks one entry by ID or, when ID is empty, by PlaceholderKey.
type FieldSelector struct {
	ID             string `json:"id"`
	PlaceholderKey string `json:"placeholderKey"`
}

// FieldPatch defines what may be changed on an existing entry. Nil fields are left untouched.
type FieldPatch struct {
	Label        *string `json:"label" validate:"omitempty,notblank"`
	Icon         *string `json:"icon" validate:"omitempty,icon"`
	DataType     *string `json:"dataType" validate:"omitempty,datatype"`
	DefaultValue *string `json:"defaultValue"`
	DBFieldPath  *string `json:"dbFieldPath" validate:"omitempty,notblank"`
}

func (p FieldPatch) Validate(validate *validator.Validate) error { return validate.Struct(p) }

type (
	ListOptions struct {
		Refresh bool `query:"refresh"`
		Custom  bool `query:"custom"`
	}

	UpsertOptions struct {
		// ValidateFromDB set to false asks for a catalog without discovery, which is not supported.
		ValidateFromDB *bool `json:"validateFromDb"`
	}

	SaveOptions struct {
		IsEdit   bool
		KeySetID string
	}

	// Listing holds either the field catalog or the custom key sets of a tenant.
	Listing struct {
		Fields  []Field  `json:"fields,omitempty"`
		KeySets []KeySet `json:"keySets,omitempty"`
	}
)
