package main

import (
	"os"

	"shoveld/cmd/shovelctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
