package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/nexconsult/mca-verify/cmd/mcactl/commands"

	// Import docs for Swagger
	_ "github.com/nexconsult/mca-verify/docs"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
