package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; the environment and .pairswap.yaml also work
	_ = godotenv.Load()

	if err := Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
