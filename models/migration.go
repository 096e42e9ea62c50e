package models

import (
	"log"

	"bitbucket.org/mmdatafocus/brewery_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Ingredient{},
		&Batch{}, &BatchIngredient{}, &ProcessEntry{},
		&FinishedProduct{},
		&Bottle{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
