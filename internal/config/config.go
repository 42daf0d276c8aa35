package config

import (
	"fmt"
	"strings"
	"time"
)

// Defaults for the public zakupki FTP mirror.
const (
	DefaultFTPHost      = "ftp.zakupki.gov.ru:21"
	DefaultFTPUser      = "free"
	DefaultFTPPassword  = "free"
	DefaultRegionsRoot  = "/fcs_regions"
	DefaultRegionPath   = "/fcs_regions/{region}/notifications"
	DefaultRegistryURL  = "https://reestr.minsvyaz.ru/reestr/"
	DefaultClassifier   = "Программное обеспечение"
	DefaultMaxDepth     = 8
	DefaultMaxExtracted = 512 << 20 // bytes of decompressed content per source archive
	DefaultPrefetch     = 1
)

var (
	DefaultFTPTimeout    = 2 * time.Minute
	DefaultVerifyTimeout = 30 * time.Second
	// Minimum spacing between registry requests.
	DefaultVerifyInterval = time.Second
)

// Config holds application settings
type Config struct {
	DbPath    string
	OutputDir string

	FTPHost     string
	FTPUser     string
	FTPPassword string
	FTPTimeout  time.Duration
	RegionsRoot string
	// RegionPath is a path pattern; "{region}" is replaced with the region name.
	RegionPath string

	RegistryURL    string
	VerifyTimeout  time.Duration
	VerifyInterval time.Duration

	Classifier   string
	MaxDepth     int
	MaxExtracted int64
	Prefetch     int
}

// Default returns a Config populated with the package defaults.
func Default() Config {
	return Config{
		DbPath:         "./goszakupki.duckdb",
		OutputDir:      "./output_parquet",
		FTPHost:        DefaultFTPHost,
		FTPUser:        DefaultFTPUser,
		FTPPassword:    DefaultFTPPassword,
		FTPTimeout:     DefaultFTPTimeout,
		RegionsRoot:    DefaultRegionsRoot,
		RegionPath:     DefaultRegionPath,
		RegistryURL:    DefaultRegistryURL,
		VerifyTimeout:  DefaultVerifyTimeout,
		VerifyInterval: DefaultVerifyInterval,
		Classifier:     DefaultClassifier,
		MaxDepth:       DefaultMaxDepth,
		MaxExtracted:   DefaultMaxExtracted,
		Prefetch:       DefaultPrefetch,
	}
}

// RegionDir resolves the notification directory of a region.
func (c Config) RegionDir(region string) string {
	return strings.ReplaceAll(c.RegionPath, "{region}", region)
}

// Validate checks the settings every command relies on.
func (c Config) Validate() error {
	if c.DbPath == "" {
		return fmt.Errorf("--db-path is required")
	}
	if c.FTPHost == "" {
		return fmt.Errorf("--ftp-host is required")
	}
	if !strings.Contains(c.RegionPath, "{region}") {
		return fmt.Errorf("region path %q must contain the {region} placeholder", c.RegionPath)
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("max archive depth must be positive, got %d", c.MaxDepth)
	}
	if c.Prefetch < 0 {
		return fmt.Errorf("prefetch must not be negative, got %d", c.Prefetch)
	}
	if c.FTPTimeout <= 0 || c.VerifyTimeout <= 0 {
		return fmt.Errorf("network timeouts must be positive")
	}
	return nil
}
