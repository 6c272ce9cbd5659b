package main

import (
	"log"

	"github.com/MrSnakeDoc/apicatalog/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ apicatalog failed: %v", err)
	}
}
