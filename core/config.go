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
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ServerConfig struct {
		Address         string
		DebugAddress    string
		ShutdownTimeout time.Duration
	}

	// TelemetryConfig drives the calls made to the videoconference provider.
	TelemetryConfig struct {
		DumpDir             string
		RequestDelay        time.Duration
		MetadataConcurrency int
		MetadataBatchDelay  time.Duration
	}

	// CliffConfig holds the tunables of the cliff detector.
	// These defaults still need calibrating against real session data.
	// Tunables for which 0 is a meaningful setting are pointers: nil means unset.
	CliffConfig struct {
		BucketWidth     time.Duration
		WindowBuckets   int
		DropThreshold   float64
		MinTailFraction *float64
		MinParticipants int
		DropWeight      *float64
		TailSaturation  float64
		HighCutoff      float64
		MediumCutoff    float64
		ImpactEpsilon   *float64
	}

	AttendanceConfig struct {
		LowThreshold float64
	}

	Config struct {
		AppName      string
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		WorkDir      string
		RollbarToken string

		Server     ServerConfig
		Database   DatabaseConfig
		Telemetry  TelemetryConfig
		Cliff      CliffConfig
		Attendance AttendanceConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "Rethink Dashboard")
	conf.SetDefault("build", "develop")

	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.debugAddress", ":4000")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", "5432")
	conf.SetDefault("database.name", "rethink")
	conf.SetDefault("database.user", "rethink")
	conf.SetDefault("database.password", "")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "")
	conf.SetDefault("database.disableTLS", false)

	conf.SetDefault("telemetry.dumpDir", "telemetry")
	conf.SetDefault("telemetry.requestDelay", 500*time.Millisecond)
	conf.SetDefault("telemetry.metadataConcurrency", 3)
	conf.SetDefault("telemetry.metadataBatchDelay", time.Second)

	conf.SetDefault("cliff.bucketWidth", time.Minute)
	conf.SetDefault("cliff.windowBuckets", 5)
	conf.SetDefault("cliff.dropThreshold", 0.5)
	conf.SetDefault("cliff.minParticipants", 3)
	conf.SetDefault("cliff.tailSaturation", 0.25)
	conf.SetDefault("cliff.highCutoff", 0.8)
	conf.SetDefault("cliff.mediumCutoff", 0.65)

	conf.SetDefault("attendance.lowThreshold", 75.0)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		AppName:      conf.GetString("appName"),
		Env:          env,
		Build:        conf.GetString("build"),
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		WorkDir:      workDir,
		RollbarToken: conf.GetString("rollbarToken"),
		Server: ServerConfig{
			Address:         conf.GetString("server.address"),
			DebugAddress:    conf.GetString("server.debugAddress"),
			ShutdownTimeout: conf.GetDuration("server.shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetString("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
		},
		Telemetry: TelemetryConfig{
			DumpDir:             conf.GetString("telemetry.dumpDir"),
			RequestDelay:        conf.GetDuration("telemetry.requestDelay"),
			MetadataConcurrency: conf.GetInt("telemetry.metadataConcurrency"),
			MetadataBatchDelay:  conf.GetDuration("telemetry.metadataBatchDelay"),
		},
		Cliff: CliffConfig{
			BucketWidth:     conf.GetDuration("cliff.bucketWidth"),
			WindowBuckets:   conf.GetInt("cliff.windowBuckets"),
			DropThreshold:   conf.GetFloat64("cliff.dropThreshold"),
			MinTailFraction: optionalFloat64(conf, "cliff.minTailFraction"),
			MinParticipants: conf.GetInt("cliff.minParticipants"),
			DropWeight:      optionalFloat64(conf, "cliff.dropWeight"),
			TailSaturation:  conf.GetFloat64("cliff.tailSaturation"),
			HighCutoff:      conf.GetFloat64("cliff.highCutoff"),
			MediumCutoff:    conf.GetFloat64("cliff.mediumCutoff"),
			ImpactEpsilon:   optionalFloat64(conf, "cliff.impactEpsilon"),
		},
		Attendance: AttendanceConfig{
			LowThreshold: conf.GetFloat64("attendance.lowThreshold"),
		},
	}
}

// optionalFloat64 returns nil when `key` is neither in the environment nor in a loaded .env file.
func optionalFloat64(conf *viper.Viper, key string) *float64 {
	if !conf.IsSet(key) {
		return nil
	}
	v := conf.GetFloat64(key)
	return &v
}
