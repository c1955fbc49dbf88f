package server

// TapeServerConfig holds tape drive and archive pipeline configuration
type TapeServerConfig struct {
	// Nominal per-tape capacity used for allocation decisions
	CapacityBytes int64 `mapstructure:"capacity_bytes" yaml:"capacity_bytes"`

	// Block size for device writes
	BlockSize int `mapstructure:"block_size" yaml:"block_size"`

	// Directory for cached-mode staging files
	StagingDir string `mapstructure:"staging_dir" yaml:"staging_dir"`

	// Device used when the caller does not name one
	DefaultDevice string `mapstructure:"default_device" yaml:"default_device"`
}
