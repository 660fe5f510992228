package main

import (
	"context"

	"avaremind-backend/cmd/avaremind-cli/commands"
	"avaremind-backend/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "avaremind-cli")
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
