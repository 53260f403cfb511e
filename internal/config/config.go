package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	AIEnabled            bool          `mapstructure:"AI_ENABLED"`
	AIProvider           string        `mapstructure:"AI_PROVIDER"`
	AIURL                string        `mapstructure:"AI_URL"`
	AIAPIKey             string        `mapstructure:"AI_API_KEY"`
	AIModel              string        `mapstructure:"AI_MODEL"`
	AITimeout            time.Duration `mapstructure:"AI_TIMEOUT"`
	AIDailyCostLimit     float64       `mapstructure:"AI_DAILY_COST_LIMIT"`
	AIMonthlyCostLimit   float64       `mapstructure:"AI_MONTHLY_COST_LIMIT"`
	AITextCallCost       float64       `mapstructure:"AI_TEXT_CALL_COST"`
	AIImageCallCost      float64       `mapstructure:"AI_IMAGE_CALL_COST"`
	AIMaxItemsPerBatch   int           `mapstructure:"AI_MAX_ITEMS_PER_BATCH"`
	ImageAnalysisEnabled bool          `mapstructure:"IMAGE_ANALYSIS_ENABLED"`
	ImageSkipConfidence  float64       `mapstructure:"IMAGE_SKIP_CONFIDENCE"`
	MaxImages            int           `mapstructure:"MAX_IMAGES"`

	BusinessHoursOnly  bool   `mapstructure:"BUSINESS_HOURS_ONLY"`
	BusinessHoursStart int    `mapstructure:"BUSINESS_HOURS_START"`
	BusinessHoursEnd   int    `mapstructure:"BUSINESS_HOURS_END"`
	Timezone           string `mapstructure:"TIMEZONE"`

	SweepInterval     time.Duration `mapstructure:"SWEEP_INTERVAL"`
	HealthInterval    time.Duration `mapstructure:"HEALTH_INTERVAL"`
	RebalanceInterval time.Duration `mapstructure:"REBALANCE_INTERVAL"`
	BatchSize         int           `mapstructure:"BATCH_SIZE"`
	BatchWorkers      int           `mapstructure:"BATCH_WORKERS"`
	MaxRunHistory     int           `mapstructure:"MAX_RUN_HISTORY"`

	NotifyURL     string        `mapstructure:"NOTIFY_URL"`
	NotifyTimeout time.Duration `mapstructure:"NOTIFY_TIMEOUT"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	TaxonomyPath string `mapstructure:"TAXONOMY_PATH"`

	ScoreLoadWeight         float64 `mapstructure:"SCORE_LOAD_WEIGHT"`
	ScoreExperienceWeight   float64 `mapstructure:"SCORE_EXPERIENCE_WEIGHT"`
	ScoreUnavailablePenalty float64 `mapstructure:"SCORE_UNAVAILABLE_PENALTY"`
	ScoreUrgentLoadWeight   float64 `mapstructure:"SCORE_URGENT_LOAD_WEIGHT"`
	ScoreHighLoadWeight     float64 `mapstructure:"SCORE_HIGH_LOAD_WEIGHT"`
	ScoreRotationPerDay     float64 `mapstructure:"SCORE_ROTATION_PER_DAY"`
	ScoreRotationCapDays    float64 `mapstructure:"SCORE_ROTATION_CAP_DAYS"`

	TierLightMax              int `mapstructure:"TIER_LIGHT_MAX"`
	TierModerateMax           int `mapstructure:"TIER_MODERATE_MAX"`
	TierHeavyMax              int `mapstructure:"TIER_HEAVY_MAX"`
	RebalanceMaxMovesPerStaff int `mapstructure:"REBALANCE_MAX_MOVES_PER_STAFF"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Unmarshal only sees env vars for keys viper already knows about.
	for _, key := range []string{"DATABASE_URL", "ADMIN_KEY", "AI_URL", "AI_API_KEY", "AI_MODEL", "NOTIFY_URL", "REDIS_ADDR", "REDIS_PASSWORD", "TAXONOMY_PATH"} {
		v.SetDefault(key, "")
	}

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	v.SetDefault("AI_ENABLED", false)
	v.SetDefault("AI_PROVIDER", "http")
	v.SetDefault("AI_TIMEOUT", "10s")
	v.SetDefault("AI_DAILY_COST_LIMIT", 5.0)
	v.SetDefault("AI_MONTHLY_COST_LIMIT", 100.0)
	v.SetDefault("AI_TEXT_CALL_COST", 0.002)
	v.SetDefault("AI_IMAGE_CALL_COST", 0.01)
	v.SetDefault("AI_MAX_ITEMS_PER_BATCH", 25)
	v.SetDefault("IMAGE_ANALYSIS_ENABLED", false)
	v.SetDefault("IMAGE_SKIP_CONFIDENCE", 0.85)
	v.SetDefault("MAX_IMAGES", 3)

	v.SetDefault("BUSINESS_HOURS_ONLY", false)
	v.SetDefault("BUSINESS_HOURS_START", 8)
	v.SetDefault("BUSINESS_HOURS_END", 20)
	v.SetDefault("TIMEZONE", "UTC")

	v.SetDefault("SWEEP_INTERVAL", "5m")
	v.SetDefault("HEALTH_INTERVAL", "1m")
	v.SetDefault("REBALANCE_INTERVAL", "0s")
	v.SetDefault("BATCH_SIZE", 50)
	v.SetDefault("BATCH_WORKERS", 4)
	v.SetDefault("MAX_RUN_HISTORY", 20)

	v.SetDefault("NOTIFY_TIMEOUT", "5s")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("SCORE_LOAD_WEIGHT", 10.0)
	v.SetDefault("SCORE_EXPERIENCE_WEIGHT", 2.0)
	v.SetDefault("SCORE_UNAVAILABLE_PENALTY", 100.0)
	v.SetDefault("SCORE_URGENT_LOAD_WEIGHT", 5.0)
	v.SetDefault("SCORE_HIGH_LOAD_WEIGHT", 3.0)
	v.SetDefault("SCORE_ROTATION_PER_DAY", 0.1)
	v.SetDefault("SCORE_ROTATION_CAP_DAYS", 30.0)

	v.SetDefault("TIER_LIGHT_MAX", 3)
	v.SetDefault("TIER_MODERATE_MAX", 6)
	v.SetDefault("TIER_HEAVY_MAX", 10)
	v.SetDefault("REBALANCE_MAX_MOVES_PER_STAFF", 2)
}

// Location resolves TIMEZONE, falling back to UTC.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
