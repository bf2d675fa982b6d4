// main.go

package main

import (
	"github.com/aegis-security/aegis/cmd"
	"github.com/aegis-security/aegis/pkg/logger"
	"github.com/aegis-security/aegis/pkg/telemetry"
)

func main() {
	logger.InitializeWithFallback()
	if err := telemetry.Init("aegis"); err != nil {
		logger.L().Warn("Telemetry initialization failed, continuing without it")
	}

	cmd.Execute()
}
