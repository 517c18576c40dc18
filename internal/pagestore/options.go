package pagestore

import (
	"go.uber.org/zap"

	"github.com/edadma/stow/internal/pkg/logging"
)

// StoreOption configures a Store at Create/Open time.
type StoreOption func(*Store)

// WithLogger attaches a structured logger. A nil logger (the default) is
// replaced with zap.NewNop(), so callers never need to nil-check s.logger.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLogLevel builds a logger at the named level (e.g. "debug", "warn")
// using the package's default production encoder config, for callers that
// want structured logging without assembling a zap.Config themselves. A
// malformed level string is reported through the store's logger rather than
// failing Create/Open, since the original caller can't inspect StoreOption
// errors.
func WithLogLevel(level string) StoreOption {
	return func(s *Store) {
		logger, err := logging.NewLogger(level)
		if err != nil {
			s.logger.Warn("invalid log level, keeping previous logger", zap.String("level", level), zap.Error(err))
			return
		}
		s.logger = logger
	}
}
