package logging

import (
	"go.uber.org/zap"
)

// New builds the process logger. Production config (JSON, info level) in
// prod, console output with debug level everywhere else.
func New(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
