package main

import (
	"os"

	"github.com/castlab/podcast-pipeline/internal/app"
)

func main() {
	os.Exit(app.Run("worker", run))
}
