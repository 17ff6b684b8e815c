package app

import (
	"time"

	"github.com/yungbote/curricula-backend/internal/pkg/logger"
	"github.com/yungbote/curricula-backend/internal/utils"
)

type Config struct {
	// DiagnosticFlowTTL bounds how long an abandoned diagnostic session
	// lingers in the state store before expiring.
	DiagnosticFlowTTL time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	diagnosticTTLSeconds := utils.GetEnvAsInt("DIAGNOSTIC_FLOW_TTL_SECONDS", 1800, log)
	return Config{
		DiagnosticFlowTTL: time.Duration(diagnosticTTLSeconds) * time.Second,
	}
}
