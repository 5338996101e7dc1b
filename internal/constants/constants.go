package constants

import "time"

const (
	DatabaseTimeout = 5 * time.Second
	RequestTimeout  = 30 * time.Second
)

const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	LeaderboardLimit  = 10
	UsageReportLimit  = 20
	SeasonCheckPeriod = 1 * time.Minute
)

const (
	PersistMaxRetries = 3
	PersistRetryBase  = 100 * time.Millisecond
)
