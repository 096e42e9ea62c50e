// seed-ingredients creates the common ingredients if they are missing.
// Existing ingredients are left untouched, so it is safe to rerun.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-ingredients
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/brewery_backend/config"
	"bitbucket.org/mmdatafocus/brewery_backend/models"
)

var defaultIngredients = []models.NewIngredient{
	{Name: "Honey"},
	{Name: "Water"},
	{Name: "Grapes"},
	{Name: "Sugar"},
	{Name: "Wine Yeast"},
	{Name: "Yeast Nutrient"},
	{Name: "Campden Tablets"},
}

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	created, err := models.SeedIngredients(ctx, defaultIngredients)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created %d of %d ingredients\n", created, len(defaultIngredients))
}
