package main

import (
	"os"

	"github.com/joho/godotenv"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()
	os.Exit(int(run()))
}
