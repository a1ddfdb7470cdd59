package models

import (
	"log"

	"github.com/davidprivate500/gonthia-crm-sub001/config"
	"gorm.io/gorm"
)

// AllModels lists every table owned by this service, parents first.
func AllModels() []any {
	return []any{
		&Tenant{}, &User{}, &PipelineStage{},
		&Company{}, &Contact{}, &Deal{}, &Activity{},
		&GenerationJob{}, &DemoPatchJob{}, &DemoMetricOverride{},
	}
}

func MigrateTable() {
	if err := Migrate(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
