package main

import (
	"context"
	"os"

	"inkwell-pipeline/cmd/inkwell/commands"
	"inkwell-pipeline/lib/telemetry"
)

func main() {
	ctx := context.Background()

	telemetry.InitSlog(os.Getenv("DEBUG") != "")
	tel, err := telemetry.SetupFromEnv(ctx, "inkwell")
	if err == nil {
		defer tel.Shutdown(ctx)
	}

	commands.ExecuteContext(ctx)
}
