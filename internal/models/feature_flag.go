package models

import (
	"gorm.io/datatypes"
)

// FeatureFlag stores a named flag together with the layered enforcement
// requirements it carries. Requirements holds the raw JSON payload described
// in internal/features; AccountTypes is an optional whitelist restricting the
// flag to specific account types.
type FeatureFlag struct {
	BaseModel

	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`
	Enabled     bool   `gorm:"default:false" json:"enabled"`
	Variant     string `json:"variant"`

	AccountTypes datatypes.JSON `json:"account_types"`
	Requirements datatypes.JSON `json:"requirements"`
}
