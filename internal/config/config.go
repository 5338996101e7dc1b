package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/intellectmind/ranked-arena/internal/domain"
)

type Config struct {
	DBPath     string
	ServerPort string
	LogLevel   string

	// Game host API.
	HostAPIURL string
	HostAPIKey string

	// Rating engine.
	StartingRating      int
	RatingFloor         int
	KFactor             int
	LoserProtectionRate float64

	// Matchmaking.
	MaxRatingDiff      int
	MaxQueueWait       time.Duration
	MaxRangeMultiplier float64
	ScanInterval       time.Duration
	PreStartDelay      time.Duration
	StartCooldown      time.Duration
	AllowedFormats     []domain.Format

	// Team selection.
	EnableTeamPreview bool
	SelectionTimeout  time.Duration
	SinglesPickCount  int
	DoublesPickCount  int

	// Battle lifecycle.
	RoundGraceDelay time.Duration
	MinTeamSize     int
	MaxTeamSize     int

	// Seasons and rewards.
	SeasonDuration time.Duration
	RankTitles     []domain.RankTitle
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:     getEnv("DB_PATH", "arena.db"),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		HostAPIURL: getEnv("HOST_API_URL", "http://127.0.0.1:8200"),
		HostAPIKey: getEnv("HOST_API_KEY", ""),

		StartingRating:      getEnvInt("STARTING_RATING", 1000),
		RatingFloor:         getEnvInt("RATING_FLOOR", 0),
		KFactor:             getEnvInt("K_FACTOR", 32),
		LoserProtectionRate: getEnvFloat("LOSER_PROTECTION_RATE", 1.0),

		MaxRatingDiff:      getEnvInt("MAX_RATING_DIFF", 200),
		MaxQueueWait:       getEnvDuration("MAX_QUEUE_WAIT", 5*time.Minute),
		MaxRangeMultiplier: getEnvFloat("MAX_RANGE_MULTIPLIER", 3.0),
		ScanInterval:       getEnvDuration("SCAN_INTERVAL", 5*time.Second),
		PreStartDelay:      getEnvDuration("PRE_START_DELAY", 5*time.Second),
		StartCooldown:      getEnvDuration("START_COOLDOWN", 10*time.Second),

		EnableTeamPreview: getEnvBool("ENABLE_TEAM_PREVIEW", true),
		SelectionTimeout:  getEnvDuration("SELECTION_TIMEOUT", 90*time.Second),
		SinglesPickCount:  getEnvInt("SINGLES_PICK_COUNT", 3),
		DoublesPickCount:  getEnvInt("DOUBLES_PICK_COUNT", 4),

		RoundGraceDelay: getEnvDuration("ROUND_GRACE_DELAY", 3*time.Second),
		MinTeamSize:     getEnvInt("MIN_TEAM_SIZE", 1),
		MaxTeamSize:     getEnvInt("MAX_TEAM_SIZE", 6),

		SeasonDuration: getEnvDuration("SEASON_DURATION", 30*24*time.Hour),
		RankTitles: []domain.RankTitle{
			{Name: "Bronze", Threshold: 0},
			{Name: "Silver", Threshold: 1500},
			{Name: "Gold", Threshold: 2000},
			{Name: "Platinum", Threshold: 2500},
			{Name: "Diamond", Threshold: 3000},
			{Name: "Master", Threshold: 3500},
		},
	}

	formats, err := parseFormats(getEnv("ALLOWED_FORMATS", "singles,doubles,duo"))
	if err != nil {
		return nil, err
	}
	cfg.AllowedFormats = formats

	if cfg.KFactor <= 0 {
		return nil, fmt.Errorf("K_FACTOR must be positive, got %d", cfg.KFactor)
	}
	if cfg.MinTeamSize < 1 || cfg.MaxTeamSize < cfg.MinTeamSize {
		return nil, fmt.Errorf("invalid team size bounds [%d, %d]", cfg.MinTeamSize, cfg.MaxTeamSize)
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Str("host_api_url", cfg.HostAPIURL).
		Int("starting_rating", cfg.StartingRating).
		Int("k_factor", cfg.KFactor).
		Int("max_rating_diff", cfg.MaxRatingDiff).
		Dur("scan_interval", cfg.ScanInterval).
		Dur("selection_timeout", cfg.SelectionTimeout).
		Dur("season_duration", cfg.SeasonDuration).
		Msg("configuration loaded")

	return cfg, nil
}

// FormatAllowed reports whether format is enabled for ranked play.
func (c *Config) FormatAllowed(format domain.Format) bool {
	for _, f := range c.AllowedFormats {
		if f == format {
			return true
		}
	}
	return false
}

// PickCount returns how many creatures a draft selects for format.
func (c *Config) PickCount(format domain.Format) int {
	if format == domain.FormatDoubles {
		return c.DoublesPickCount
	}
	return c.SinglesPickCount
}

func parseFormats(raw string) ([]domain.Format, error) {
	var formats []domain.Format
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(strings.ToLower(part))
		if name == "" {
			continue
		}
		// "duo" is shorthand for the 2v2 relay format.
		if name == "duo" {
			name = string(domain.FormatDuo)
		}
		f := domain.Format(name)
		if !f.Valid() {
			return nil, fmt.Errorf("unknown format %q in ALLOWED_FORMATS", part)
		}
		formats = append(formats, f)
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("ALLOWED_FORMATS must name at least one format")
	}
	return formats, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

var Module = fx.Provide(Load)
