package database

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/features"
	"github.com/mwhitfield/ledgerline/internal/models"
)

type seedFlag struct {
	Name        string
	Description string
	Enabled     bool
}

func seedFeatureFlag(db *gorm.DB, flag seedFlag, req features.Requirements) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode requirements for %s: %w", flag.Name, err)
	}

	record := models.FeatureFlag{
		Name:         flag.Name,
		Description:  flag.Description,
		Enabled:      flag.Enabled,
		Requirements: datatypes.JSON(payload),
	}

	if err := db.Where(models.FeatureFlag{Name: flag.Name}).
		Attrs(record).
		FirstOrCreate(&models.FeatureFlag{}).Error; err != nil {
		return fmt.Errorf("seed flag %s: %w", flag.Name, err)
	}

	return nil
}
