package main

import (
	"fmt"
	"os"

	"github.com/datastations/packaging-service/internal/app"
	"github.com/datastations/packaging-service/internal/platform/envutil"
)

func main() {
	application, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	addr := envutil.Str("LISTEN_ADDR", ":8080")
	application.Log.Info("Starting server", "addr", addr)
	if err := application.Run(addr); err != nil {
		application.Log.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
