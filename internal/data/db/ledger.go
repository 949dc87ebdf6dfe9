package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/graphstore/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// LedgerService owns the relational database that records import runs.
type LedgerService struct {
	db     *gorm.DB
	driver string
	log    *logger.Logger
}

// OpenLedger connects using dsn. postgres:// and postgresql:// select Postgres;
// sqlite:<path>, file:<path> and :memory: select SQLite.
func OpenLedger(dsn string, logg *logger.Logger) (*LedgerService, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	serviceLog := logg.With("service", "LedgerService")

	dialector, driver, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger (%s): %w", driver, err)
	}
	if err := AutoMigrateAll(db); err != nil {
		return nil, fmt.Errorf("ledger automigrate: %w", err)
	}

	serviceLog.Info("ledger ready", "driver", driver)
	return &LedgerService{db: db, driver: driver, log: serviceLog}, nil
}

func (s *LedgerService) DB() *gorm.DB   { return s.db }
func (s *LedgerService) Driver() string { return s.driver }

func (s *LedgerService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dialectorFor(dsn string) (gorm.Dialector, string, error) {
	dsn = strings.TrimSpace(dsn)
	lower := strings.ToLower(dsn)
	switch {
	case dsn == "":
		return nil, "", fmt.Errorf("ledger dsn is empty")
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return postgres.Open(dsn), DriverPostgres, nil
	case strings.HasPrefix(lower, "sqlite:"):
		return sqlite.Open(dsn[len("sqlite:"):]), DriverSQLite, nil
	case strings.HasPrefix(lower, "file:"), dsn == ":memory:":
		return sqlite.Open(dsn), DriverSQLite, nil
	default:
		return nil, "", fmt.Errorf("unsupported ledger dsn scheme: %q", redactDSN(dsn))
	}
}

// redactDSN keeps the scheme only; DSNs routinely carry passwords.
func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "://"); i > 0 {
		return dsn[:i] + "://..."
	}
	if i := strings.Index(dsn, ":"); i > 0 {
		return dsn[:i] + ":..."
	}
	return "..."
}
