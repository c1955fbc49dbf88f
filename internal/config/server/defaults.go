package server

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

func GetServerDefault() BaseServerConfig {
	return BaseServerConfig{
		ShutdownTimeout: "10s",

		Log: LogServerConfig{
			Level:      "INFO",
			TimeFormat: "2006-01-02 15:04:05",
			File:       "",
			NoColor:    false,
			JSON:       false,
			NoTerminal: false,
			Rotation: LogServerRotationConfig{
				MaxSize:    128,
				MaxBackups: 5,
				MaxAge:     16,
				Compress:   false,
			},
		},

		Metadata: MetadataServerConfig{
			Type: "sqlite",
			SQLite: MetadataSQLiteConfig{
				Path: "./data/gotape.db",
			},
		},

		Tape: TapeServerConfig{
			CapacityBytes: 6_000_000_000_000, // LTO-7 nominal
			BlockSize:     65536,
			StagingDir:    filepath.Join(os.TempDir(), "gotape"),
			DefaultDevice: "/dev/nst0",
		},
	}
}

func setDefaults() {
	defaults := GetServerDefault()

	viper.SetDefault("shutdown_timeout", defaults.ShutdownTimeout)

	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.time_format", defaults.Log.TimeFormat)
	viper.SetDefault("log.file", defaults.Log.File)
	viper.SetDefault("log.no_color", defaults.Log.NoColor)
	viper.SetDefault("log.json", defaults.Log.JSON)
	viper.SetDefault("log.no_terminal", defaults.Log.NoTerminal)
	viper.SetDefault("log.rotation.max_size", defaults.Log.Rotation.MaxSize)
	viper.SetDefault("log.rotation.max_backups", defaults.Log.Rotation.MaxBackups)
	viper.SetDefault("log.rotation.max_age", defaults.Log.Rotation.MaxAge)
	viper.SetDefault("log.rotation.compress", defaults.Log.Rotation.Compress)

	viper.SetDefault("metadata.type", defaults.Metadata.Type)
	viper.SetDefault("metadata.sqlite.path", defaults.Metadata.SQLite.Path)

	viper.SetDefault("tape.capacity_bytes", defaults.Tape.CapacityBytes)
	viper.SetDefault("tape.block_size", defaults.Tape.BlockSize)
	viper.SetDefault("tape.staging_dir", defaults.Tape.StagingDir)
	viper.SetDefault("tape.default_device", defaults.Tape.DefaultDevice)
}
