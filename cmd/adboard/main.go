package main

import (
	"os"

	"adboard/cmd/internal/app"
)

func main() {
	os.Exit(app.Execute())
}
