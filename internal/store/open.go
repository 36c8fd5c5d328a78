package store

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/logger"
	"github.com/sirupsen/logrus"
)

const (
	defaultConnectDelay    = 500 * time.Millisecond
	defaultConnectMaxDelay = 5 * time.Second
)

type OpenConfig struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
	// Attempts bounds how many times the connection and schema probe are
	// tried before giving up.
	Attempts int
}

// Open connects to the configured store and waits, with backoff, until the
// database answers and carries the expected schema. sqlite databases are
// migrated on open; postgres schemas are provisioned with the migrate command.
func Open(ctx context.Context, cfg OpenConfig) (*SQLStore, error) {
	var (
		s   *SQLStore
		err error
	)
	switch cfg.Driver {
	case DialectPostgres:
		s, err = NewPostgresStore(cfg.DatabaseURL)
	case DialectSQLite:
		s, err = NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		return nil, domain.InvalidArgumentf("unsupported store driver %q (want postgres or sqlite)", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	err = retry.Do(
		func() error { return s.Ping(ctx) },
		retry.RetryIf(func(err error) bool { return domain.HasCode(err, domain.CodeSchemaUnavailable) }),
		retry.Attempts(uint(attempts)),
		retry.Delay(defaultConnectDelay),
		retry.MaxDelay(defaultConnectMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithFields(logrus.Fields{
				"attempt":      n + 1,
				"max_attempts": attempts,
				"driver":       cfg.Driver,
			}).Warn("store not ready, retrying")
		}),
	)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
