package main

import (
	"log"

	"github.com/joho/godotenv"
)

func init() {
	// .env must be loaded before any other init reads the environment.
	if err := godotenv.Load(); err != nil {
		log.Printf("[Init] No .env file loaded: %v", err)
	}
	debugMode = envBool("DEBUG", false)
}
