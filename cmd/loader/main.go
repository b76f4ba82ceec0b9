package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/hankgalt/load-orchestra/internal/cli"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
