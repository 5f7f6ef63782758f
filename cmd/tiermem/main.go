package main

import (
	"github.com/joho/godotenv"

	"github.com/bowerhall/tiermem/cmd/tiermem/cli"
)

func init() {
	godotenv.Load()
}

func main() {
	cli.Execute()
}
