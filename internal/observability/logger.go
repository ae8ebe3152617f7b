package observability

import "go.uber.org/zap"

// NewLogger builds the coordinator's structured logger: JSON production
// config in any environment but "development", where it switches to the
// human-readable console encoder. Mirrors the teacher's
// cmd/gateway/main.go zap.NewProduction()/zap.NewDevelopment() split.
func NewLogger(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
