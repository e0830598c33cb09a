package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Media     MediaConfig
	Catalog   CatalogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
	MaxUploadBytes int64
	OpenBrowser    bool
	SiteDir        string
}

// StorageConfig selects where bucket documents live: file, memory, redis or postgres
type StorageConfig struct {
	Backend        string
	DataDir        string
	RedisKeyPrefix string
}

type MediaConfig struct {
	Root         string
	RawDir       string
	CanvasSize   int
	Fit          string
	Format       string
	Quality      int
	HDSize       int
	HDQuality    int
	ThumbSize    int
	ThumbQuality int
}

type CatalogConfig struct {
	IDPrefix string
	IDFloor  int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Schema   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	Window            time.Duration
}

func setDefaults() {
	viper.SetDefault("SERVER_PORT", "8000")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("SERVER_ALLOWED_ORIGINS", "*")
	viper.SetDefault("SERVER_MAX_UPLOAD_BYTES", int64(1<<30))
	viper.SetDefault("SERVER_OPEN_BROWSER", false)
	viper.SetDefault("SERVER_SITE_DIR", ".")
	viper.SetDefault("STORAGE_BACKEND", "file")
	viper.SetDefault("STORAGE_DATA_DIR", ".")
	viper.SetDefault("STORAGE_REDIS_PREFIX", "catalog")
	viper.SetDefault("MEDIA_ROOT", ".")
	viper.SetDefault("MEDIA_RAW_DIR", "raw_images")
	viper.SetDefault("MEDIA_CANVAS_SIZE", 1000)
	viper.SetDefault("MEDIA_FIT", "contain")
	viper.SetDefault("MEDIA_FORMAT", "png")
	viper.SetDefault("MEDIA_QUALITY", 85)
	viper.SetDefault("MEDIA_HD_SIZE", 1200)
	viper.SetDefault("MEDIA_HD_QUALITY", 85)
	viper.SetDefault("MEDIA_THUMB_SIZE", 400)
	viper.SetDefault("MEDIA_THUMB_QUALITY", 80)
	viper.SetDefault("CATALOG_ID_PREFIX", "DS-")
	viper.SetDefault("CATALOG_ID_FLOOR", 100)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_REQUESTS", 120)
	viper.SetDefault("RATE_LIMIT_WINDOW", time.Minute)
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not read .env file: %v", err)
	}

	viper.AutomaticEnv()
	setDefaults()

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Env:            viper.GetString("SERVER_ENV"),
			AllowedOrigins: splitList(viper.GetString("SERVER_ALLOWED_ORIGINS")),
			MaxUploadBytes: viper.GetInt64("SERVER_MAX_UPLOAD_BYTES"),
			OpenBrowser:    viper.GetBool("SERVER_OPEN_BROWSER"),
			SiteDir:        viper.GetString("SERVER_SITE_DIR"),
		},
		Storage: StorageConfig{
			Backend:        strings.ToLower(viper.GetString("STORAGE_BACKEND")),
			DataDir:        viper.GetString("STORAGE_DATA_DIR"),
			RedisKeyPrefix: viper.GetString("STORAGE_REDIS_PREFIX"),
		},
		Media: MediaConfig{
			Root:         viper.GetString("MEDIA_ROOT"),
			RawDir:       viper.GetString("MEDIA_RAW_DIR"),
			CanvasSize:   viper.GetInt("MEDIA_CANVAS_SIZE"),
			Fit:          strings.ToLower(viper.GetString("MEDIA_FIT")),
			Format:       strings.ToLower(viper.GetString("MEDIA_FORMAT")),
			Quality:      viper.GetInt("MEDIA_QUALITY"),
			HDSize:       viper.GetInt("MEDIA_HD_SIZE"),
			HDQuality:    viper.GetInt("MEDIA_HD_QUALITY"),
			ThumbSize:    viper.GetInt("MEDIA_THUMB_SIZE"),
			ThumbQuality: viper.GetInt("MEDIA_THUMB_QUALITY"),
		},
		Catalog: CatalogConfig{
			IDPrefix: viper.GetString("CATALOG_ID_PREFIX"),
			IDFloor:  viper.GetInt("CATALOG_ID_FLOOR"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_DATABASE"),
			Schema:   viper.GetString("DB_SCHEMA"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		RateLimit: RateLimitConfig{
			Enabled:           viper.GetBool("RATE_LIMIT_ENABLED"),
			RequestsPerWindow: viper.GetInt("RATE_LIMIT_REQUESTS"),
			Window:            viper.GetDuration("RATE_LIMIT_WINDOW"),
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
