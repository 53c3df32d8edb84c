package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Stops  StopsConfig  `yaml:"stops" mapstructure:"stops"`
	Census CensusConfig `yaml:"census" mapstructure:"census"`
	Join   JoinConfig   `yaml:"join" mapstructure:"join"`
	Report ReportConfig `yaml:"report" mapstructure:"report"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
}

// StopsConfig points at the transit stop table.
type StopsConfig struct {
	Path            string `yaml:"path" mapstructure:"path"`
	IncludeStations bool   `yaml:"include_stations" mapstructure:"include_stations"`
}

// CensusConfig configures where dissemination area data comes from.
type CensusConfig struct {
	Source             string   `yaml:"source" mapstructure:"source"` // "api" or "shapefile"
	BaseURL            string   `yaml:"base_url" mapstructure:"base_url"`
	APIKey             string   `yaml:"api_key" mapstructure:"api_key"`
	Dataset            string   `yaml:"dataset" mapstructure:"dataset"`
	RegionLevel        string   `yaml:"region_level" mapstructure:"region_level"`
	RegionIDs          []string `yaml:"region_ids" mapstructure:"region_ids"`
	Level              string   `yaml:"level" mapstructure:"level"`
	IncomeVector       string   `yaml:"income_vector" mapstructure:"income_vector"`
	VehicleVector      string   `yaml:"vehicle_vector" mapstructure:"vehicle_vector"`
	CachePath          string   `yaml:"cache_path" mapstructure:"cache_path"`
	CacheTTLHours      int      `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	ShapefilePath      string   `yaml:"shapefile_path" mapstructure:"shapefile_path"`
	AttributesPath     string   `yaml:"attributes_path" mapstructure:"attributes_path"`
	AttributesEncoding string   `yaml:"attributes_encoding" mapstructure:"attributes_encoding"`
	SourceCRS          string   `yaml:"source_crs" mapstructure:"source_crs"`
	RatePerSec         float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs        int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// JoinConfig selects the spatial join backend.
type JoinConfig struct {
	Backend     string `yaml:"backend" mapstructure:"backend"` // "memory" or "postgis"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ReportConfig configures report artefacts.
type ReportConfig struct {
	OutDir       string  `yaml:"out_dir" mapstructure:"out_dir"`
	LayersFile   string  `yaml:"layers_file" mapstructure:"layers_file"`
	PlotWidthIn  float64 `yaml:"plot_width_in" mapstructure:"plot_width_in"`
	PlotHeightIn float64 `yaml:"plot_height_in" mapstructure:"plot_height_in"`
	// ConfidenceLevel of the band drawn around each regression line.
	ConfidenceLevel float64 `yaml:"confidence_level" mapstructure:"confidence_level"`
}

// ServerConfig configures the report file server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STOPCENSUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("stops.path", "data/stops.txt")
	v.SetDefault("stops.include_stations", false)
	v.SetDefault("census.source", "api")
	v.SetDefault("census.base_url", "https://censusmapper.ca")
	v.SetDefault("census.dataset", "CA16")
	v.SetDefault("census.region_level", "CMA")
	v.SetDefault("census.region_ids", []string{"35505"})
	v.SetDefault("census.level", "DA")
	v.SetDefault("census.income_vector", "v_CA16_2397")
	v.SetDefault("census.vehicle_vector", "v_CA16_5795")
	v.SetDefault("census.cache_path", "cache/census.db")
	v.SetDefault("census.cache_ttl_hours", 720)
	v.SetDefault("census.attributes_encoding", "utf-8")
	v.SetDefault("census.source_crs", "EPSG:3347")
	v.SetDefault("census.rate_per_sec", 2.0)
	v.SetDefault("census.timeout_secs", 120)
	v.SetDefault("join.backend", "memory")
	v.SetDefault("report.out_dir", "out")
	v.SetDefault("report.plot_width_in", 7.0)
	v.SetDefault("report.plot_height_in", 5.0)
	v.SetDefault("report.confidence_level", 0.95)
	v.SetDefault("server.port", 8080)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings that no stage can act on.
func (c *Config) Validate() error {
	switch c.Census.Source {
	case "api", "shapefile":
	default:
		return eris.Errorf("config: unknown census.source %q (valid: api, shapefile)", c.Census.Source)
	}
	switch c.Join.Backend {
	case "memory":
	case "postgis":
		if c.Join.DatabaseURL == "" {
			return eris.New("config: join.database_url is required for the postgis backend")
		}
	default:
		return eris.Errorf("config: unknown join.backend %q (valid: memory, postgis)", c.Join.Backend)
	}
	if l := c.Report.ConfidenceLevel; l != 0 && (l <= 0 || l >= 1) {
		return eris.Errorf("config: report.confidence_level must be in (0, 1), got %v", l)
	}
	if c.Census.IncomeVector == "" || c.Census.VehicleVector == "" {
		return eris.New("config: census.income_vector and census.vehicle_vector are required")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
