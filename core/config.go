package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	DatabaseConfig struct {
		Engine        string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		Name          string
		DisableTLS    bool
	}

	ServerConfig struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	// StorageConfig describes the legacy flat-file directory and the lazy migration queue.
	StorageConfig struct {
		DataDir          string
		QueueSize        int
		MigrationTimeout time.Duration
	}

	Config struct {
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		RollbarToken string
		Database     DatabaseConfig
		Server       ServerConfig
		Storage      StorageConfig
	}
)

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

// NewConfig reads the configuration from the environment.
// ENV selects the environment (DEV by default, TEST, QA, PROD) and is used as the variables prefix,
// e.g. DEV_DATABASE_NAME. A `config/.env.<env>` file is loaded first when it exists.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("rollbar_token", "")
	v.SetDefault("database_engine", "postgres")
	v.SetDefault("database_user", "calisma")
	v.SetDefault("database_password", "calisma")
	v.SetDefault("database_admin_user", "postgres")
	v.SetDefault("database_admin_password", "")
	v.SetDefault("database_host", "localhost")
	v.SetDefault("database_port", "5432")
	v.SetDefault("database_name", "calisma")
	v.SetDefault("database_disable_tls", true)
	v.SetDefault("server_host", "0.0.0.0:3000")
	v.SetDefault("server_debug_host", "0.0.0.0:4000")
	v.SetDefault("server_shutdown_timeout", 5*time.Second)
	v.SetDefault("data_dir", ".")
	v.SetDefault("migration_queue_size", 64)
	v.SetDefault("migration_timeout", 10*time.Second)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     env == "TEST",
		RollbarToken: v.GetString("rollbar_token"),
		Database: DatabaseConfig{
			Engine:        v.GetString("database_engine"),
			User:          v.GetString("database_user"),
			Password:      v.GetString("database_password"),
			AdminUser:     v.GetString("database_admin_user"),
			AdminPassword: v.GetString("database_admin_password"),
			Host:          v.GetString("database_host"),
			Port:          v.GetString("database_port"),
			Name:          v.GetString("database_name"),
			DisableTLS:    v.GetBool("database_disable_tls"),
		},
		Server: ServerConfig{
			Host:            v.GetString("server_host"),
			DebugHost:       v.GetString("server_debug_host"),
			ShutdownTimeout: v.GetDuration("server_shutdown_timeout"),
		},
		Storage: StorageConfig{
			DataDir:          v.GetString("data_dir"),
			QueueSize:        v.GetInt("migration_queue_size"),
			MigrationTimeout: v.GetDuration("migration_timeout"),
		},
	}
}
