package main

import (
	"os"

	"github.com/GoogleCloudPlatform/db-query-playground/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
