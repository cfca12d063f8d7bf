// Package config loads and validates the goconnectome YAML configuration.
//
// The config covers everything that is not a per-run input: where the
// external tool suites live, whether tools execute locally or on a remote
// compute node, tractography defaults, monitoring, logging and the batch
// server. Per-run inputs (images, gradient tables, parcellations) come from
// CLI flags or from a server run definition and override nothing here.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default tool environment
	DefaultFSLInit = "/etc/fsl/5.0/fsl.sh"

	// Default tractography parameters
	defaultMTracks     = 10   // millions of streamlines generated by tckgen
	defaultSIFTMTracks = 2    // millions of streamlines kept by tcksift
	defaultMaxLength   = 250  // mm
	defaultCutoff      = 0.06 // FOD amplitude termination threshold
	defaultNThreads    = 1

	// Default monitoring settings
	defaultMetricsPrefix = "connectome"
	defaultJobName       = "goconnectome"

	// Default server settings
	defaultListenAddr  = ":8080"
	defaultStateDir    = "/var/lib/goconnectome/runs"
	defaultMaxHistory  = 100
	defaultToolTimeout = 12 * time.Hour

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stderr"
)

// Config represents the complete application configuration.
type Config struct {
	Tools        ToolsConfig        `yaml:"tools"`
	Execution    ExecutionConfig    `yaml:"execution"`
	Tractography TractographyConfig `yaml:"tractography"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Logging      LoggingConfig      `yaml:"logging"`
	Server       ServerConfig       `yaml:"server"`
}

// ToolsConfig locates the external tool suites.
type ToolsConfig struct {
	// FSLInit is the shell script sourced to build the FSL environment.
	FSLInit string `yaml:"fsl_init"`

	// FreesurferHome is the Freesurfer installation root ($FREESURFER_HOME).
	// Empty means read the environment variable at run time.
	FreesurferHome string `yaml:"freesurfer_home"`

	// MRtrixPath is an optional directory prepended to PATH so a specific
	// MRtrix build is picked up instead of whatever is on the system path.
	MRtrixPath string `yaml:"mrtrix_path"`

	// ToolTimeout bounds a single external tool invocation.
	ToolTimeout time.Duration `yaml:"tool_timeout"`
}

// ExecutionConfig selects where external tools run.
type ExecutionConfig struct {
	// Mode is "local" or "ssh".
	Mode string `yaml:"mode"`

	// Host, User and PrivateKeyPath configure the ssh mode. Host defaults
	// to port 22 when no port is given.
	Host           string `yaml:"host"`
	User           string `yaml:"user"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// TractographyConfig holds defaults for the per-run tractography flags.
type TractographyConfig struct {
	MTracks     int     `yaml:"mtracks"`      // millions of streamlines to generate
	SIFTMTracks int     `yaml:"sift_mtracks"` // millions of streamlines after SIFT
	MaxLength   int     `yaml:"maxlength"`    // mm
	Cutoff      float64 `yaml:"cutoff"`       // FOD amplitude cutoff
	NThreads    int     `yaml:"nthreads"`
}

// MonitoringConfig holds metrics and monitoring settings.
// An empty VictoriaMetricsURL disables metric pushing for CLI runs.
type MonitoringConfig struct {
	VictoriaMetricsURL string `yaml:"victoriametrics_url"`
	MetricsPrefix      string `yaml:"metrics_prefix"`
	JobName            string `yaml:"jobname"`
}

// LoggingConfig defines logging behavior settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// ServerConfig configures the batch server.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	// StateDir is where completed run records are persisted as JSON.
	StateDir string `yaml:"state_dir"`

	// MaxHistory bounds the number of run records kept.
	MaxHistory int `yaml:"max_history"`

	// Cron schedules named runs, format "run1,run2:0 2 * * *;run3:0 4 * * *".
	// Empty disables scheduling; runs can still be triggered via POST /run.
	Cron string `yaml:"cron"`

	// Runs are the named run definitions the server can execute.
	Runs map[string]RunConfig `yaml:"runs"`
}

// RunConfig defines one schedulable pipeline run. The fields mirror the CLI
// flags of the two front ends; which ones are required depends on Variant.
type RunConfig struct {
	// Variant is "preregistered" or "freesurfer".
	Variant string `yaml:"variant"`

	T1Brain        string `yaml:"t1_brain"`
	DWI            string `yaml:"dwi"`
	BVals          string `yaml:"bvals"`
	BVecs          string `yaml:"bvecs"`
	NodifBrainMask string `yaml:"nodif_brain_mask"`
	Parc           string `yaml:"parc"`
	ParcLUT        string `yaml:"parc_lut"`
	ConnectomeLUT  string `yaml:"connectome_lut"`
	FSDir          string `yaml:"fsdir"`
	SubjectID      string `yaml:"subjectid"`
	OutDir         string `yaml:"outdir"`
	TempDir        string `yaml:"tempdir"`
}

// Validate performs basic validation on the configuration.
func (c *Config) Validate() error {
	switch c.Execution.Mode {
	case "local":
	case "ssh":
		if c.Execution.Host == "" {
			return fmt.Errorf("execution host is required in ssh mode")
		}
		if c.Execution.User == "" {
			return fmt.Errorf("execution user is required in ssh mode")
		}
		if c.Execution.PrivateKeyPath == "" {
			return fmt.Errorf("execution private key path is required in ssh mode")
		}
	default:
		return fmt.Errorf("execution mode must be local or ssh, got %q", c.Execution.Mode)
	}

	if c.Tractography.MTracks < 1 {
		return fmt.Errorf("mtracks must be at least 1")
	}
	if c.Tractography.SIFTMTracks < 1 {
		return fmt.Errorf("sift mtracks must be at least 1")
	}
	if c.Tractography.SIFTMTracks > c.Tractography.MTracks {
		return fmt.Errorf("sift mtracks (%d) cannot exceed mtracks (%d)",
			c.Tractography.SIFTMTracks, c.Tractography.MTracks)
	}
	if c.Tractography.MaxLength <= 0 {
		return fmt.Errorf("maxlength must be positive")
	}
	if c.Tractography.Cutoff <= 0 {
		return fmt.Errorf("cutoff must be positive")
	}
	if c.Tractography.NThreads < 1 {
		return fmt.Errorf("nthreads must be at least 1")
	}
	if c.Tools.ToolTimeout <= 0 {
		return fmt.Errorf("tool timeout must be positive")
	}
	if c.Server.MaxHistory < 1 {
		return fmt.Errorf("server max history must be at least 1")
	}

	for name, run := range c.Server.Runs {
		if run.Variant != "preregistered" && run.Variant != "freesurfer" {
			return fmt.Errorf("run %q: variant must be preregistered or freesurfer, got %q",
				name, run.Variant)
		}
	}

	return nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Tools.FSLInit == "" {
		c.Tools.FSLInit = DefaultFSLInit
	}
	if c.Tools.ToolTimeout == 0 {
		c.Tools.ToolTimeout = defaultToolTimeout
	}
	if c.Execution.Mode == "" {
		c.Execution.Mode = "local"
	}
	if c.Tractography.MTracks == 0 {
		c.Tractography.MTracks = defaultMTracks
	}
	if c.Tractography.SIFTMTracks == 0 {
		c.Tractography.SIFTMTracks = defaultSIFTMTracks
	}
	if c.Tractography.MaxLength == 0 {
		c.Tractography.MaxLength = defaultMaxLength
	}
	if c.Tractography.Cutoff == 0 {
		c.Tractography.Cutoff = defaultCutoff
	}
	if c.Tractography.NThreads == 0 {
		c.Tractography.NThreads = defaultNThreads
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}
	if c.Server.StateDir == "" {
		c.Server.StateDir = defaultStateDir
	}
	if c.Server.MaxHistory == 0 {
		c.Server.MaxHistory = defaultMaxHistory
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
}

// Default returns a configuration with all defaults applied. This is what a
// CLI run uses when no --config flag is given.
func Default() Config {
	var cfg Config
	cfg.SetDefaults()
	return cfg
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
