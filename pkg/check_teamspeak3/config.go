package check_teamspeak3

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

// Config contains everything a single check run needs, it is not changed once built.
type Config struct {
	Host        string        `validate:"required"`
	Port        int           `validate:"min=1,max=65535"`
	VirtualPort int           `validate:"min=0,max=65535"`
	Timeout     time.Duration `validate:"gt=0"`

	Username string
	Password string `validate:"required_with=Username"`

	PacketLoss    ThresholdSpec[float64]
	Ping          ThresholdSpec[int64]
	Clients       ThresholdSpec[int64]
	MinimalUptime int64 `validate:"gte=0"`

	IgnoreReservedSlots bool
	IgnoreVirtualStatus bool

	Debug              bool
	LogFile            string
	PrometheusTextfile string
}

// Address returns host:port of the query interface.
func (cfg *Config) Address() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// ErrHelp is returned when the usage has been requested.
var ErrHelp = errors.New("help requested")

// UsageError carries the usage or version text for help and version requests.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string {
	return e.Usage
}

func (e *UsageError) Unwrap() error {
	return ErrHelp
}

type checkOpts struct {
	Host        string `short:"H" long:"host" default:"localhost" description:"ServerQuery host name or address" value-name:"<host>"`
	Port        int    `short:"p" long:"port" default:"10011" description:"ServerQuery port" value-name:"<port>"`
	VirtualPort int    `long:"virtualport" description:"voice port of the virtual server, enables the virtual server checks" value-name:"<port>"`
	Timeout     int    `short:"t" long:"timeout" default:"10" description:"connection and response timeout" value-name:"<seconds>"`

	Username string `short:"u" long:"username" description:"ServerQuery login name, the check runs anonymously if not set" value-name:"<name>"`
	Password string `long:"password" description:"ServerQuery login password" value-name:"<password>"`

	WarningPacketLoss   float64 `long:"warning-packetloss" description:"warning threshold for the average client packetloss" value-name:"<percent>"`
	CriticalPacketLoss  float64 `long:"critical-packetloss" description:"critical threshold for the average client packetloss" value-name:"<percent>"`
	WarningPing         int64   `long:"warning-ping" description:"warning threshold for the average client ping" value-name:"<ms>"`
	CriticalPing        int64   `long:"critical-ping" description:"critical threshold for the average client ping" value-name:"<ms>"`
	WarningClients      int64   `long:"warning-clients" description:"warning threshold for the used client slots" value-name:"<percent>"`
	CriticalClients     int64   `long:"critical-clients" description:"critical threshold for the used client slots" value-name:"<percent>"`
	MinimalUptime       int64   `long:"minimal-uptime" description:"critical if the uptime is lower" value-name:"<seconds>"`
	IgnoreReservedSlots bool    `long:"ignore-reserved-slots" description:"a reserved slot will be counted as free slot"`
	IgnoreVirtualStatus bool    `long:"ignore-virtualserverstatus" description:"go to UNKNOWN state when virtual server is offline"`

	ConfigFile         string `short:"c" long:"config" description:"read defaults from yaml file, command line options take precedence" value-name:"<file>"`
	PrometheusTextfile string `long:"prometheus-textfile" description:"write metrics in prometheus text format into this file" value-name:"<file>"`
	LogFile            string `long:"logfile" default:"stderr" description:"path to log file or stdout/stderr" value-name:"<file>"`
	Debug              bool   `long:"debug" description:"log sent commands and received responses"`
	Version            bool   `short:"V" long:"version" description:"print version and exit"`
}

// fileOptions mirrors checkOpts for the yaml config file, keys are the long option names.
type fileOptions struct {
	Host        *string `yaml:"host"`
	Port        *int    `yaml:"port"`
	VirtualPort *int    `yaml:"virtualport"`
	Timeout     *int    `yaml:"timeout"`

	Username *string `yaml:"username"`
	Password *string `yaml:"password"`

	WarningPacketLoss   *float64 `yaml:"warning-packetloss"`
	CriticalPacketLoss  *float64 `yaml:"critical-packetloss"`
	WarningPing         *int64   `yaml:"warning-ping"`
	CriticalPing        *int64   `yaml:"critical-ping"`
	WarningClients      *int64   `yaml:"warning-clients"`
	CriticalClients     *int64   `yaml:"critical-clients"`
	MinimalUptime       *int64   `yaml:"minimal-uptime"`
	IgnoreReservedSlots *bool    `yaml:"ignore-reserved-slots"`
	IgnoreVirtualStatus *bool    `yaml:"ignore-virtualserverstatus"`

	PrometheusTextfile *string `yaml:"prometheus-textfile"`
	LogFile            *string `yaml:"logfile"`
	Debug              *bool   `yaml:"debug"`
}

const usageDescription = `Teamspeak3 performance/health check

  * all checks are optional, they will be executed when a warning and or critical limit has been given
  * when virtualport is not set, uptime & clients check will be done globally,
    other checks do require the virtualport to be set`

func newParser(opts *checkOpts) *flags.Parser {
	psr := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash) // default flags without flags.PrintErrors
	psr.Name = "check_teamspeak3"
	psr.Usage = "--host <localhost> --port <10011> [--virtualport <portnr>] [OPTIONS]"
	psr.LongDescription = usageDescription

	return psr
}

// ParseArgs builds the configuration from command line arguments and the optional config file.
func ParseArgs(args []string) (*Config, error) {
	opts := &checkOpts{}
	psr := newParser(opts)

	if len(args) == 0 {
		return nil, &UsageError{Usage: usage(psr)}
	}

	_, err := psr.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, &UsageError{Usage: usage(psr)}
		}

		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	if opts.Version {
		return nil, &UsageError{Usage: VersionString()}
	}

	if opts.ConfigFile != "" {
		if err := opts.mergeFile(opts.ConfigFile, explicitOptions(psr)); err != nil {
			return nil, err
		}
	}

	cfg := opts.config()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func usage(psr *flags.Parser) string {
	buf := strings.Builder{}
	psr.WriteHelp(&buf)

	return buf.String()
}

// explicitOptions returns a lookup for options given on the command line, defaults do not count.
func explicitOptions(psr *flags.Parser) func(long string) bool {
	return func(long string) bool {
		opt := psr.FindOptionByLongName(long)
		if opt == nil {
			return false
		}

		return opt.IsSet() && !opt.IsSetDefault()
	}
}

func (opts *checkOpts) mergeFile(file string, explicit func(long string) bool) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading config file failed: %w", err)
	}

	fileOpts := fileOptions{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fileOpts); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config file %s failed: %w", file, err)
	}

	mergeOption(explicit("host"), &opts.Host, fileOpts.Host)
	mergeOption(explicit("port"), &opts.Port, fileOpts.Port)
	mergeOption(explicit("virtualport"), &opts.VirtualPort, fileOpts.VirtualPort)
	mergeOption(explicit("timeout"), &opts.Timeout, fileOpts.Timeout)
	mergeOption(explicit("username"), &opts.Username, fileOpts.Username)
	mergeOption(explicit("password"), &opts.Password, fileOpts.Password)
	mergeOption(explicit("warning-packetloss"), &opts.WarningPacketLoss, fileOpts.WarningPacketLoss)
	mergeOption(explicit("critical-packetloss"), &opts.CriticalPacketLoss, fileOpts.CriticalPacketLoss)
	mergeOption(explicit("warning-ping"), &opts.WarningPing, fileOpts.WarningPing)
	mergeOption(explicit("critical-ping"), &opts.CriticalPing, fileOpts.CriticalPing)
	mergeOption(explicit("warning-clients"), &opts.WarningClients, fileOpts.WarningClients)
	mergeOption(explicit("critical-clients"), &opts.CriticalClients, fileOpts.CriticalClients)
	mergeOption(explicit("minimal-uptime"), &opts.MinimalUptime, fileOpts.MinimalUptime)
	mergeOption(explicit("ignore-reserved-slots"), &opts.IgnoreReservedSlots, fileOpts.IgnoreReservedSlots)
	mergeOption(explicit("ignore-virtualserverstatus"), &opts.IgnoreVirtualStatus, fileOpts.IgnoreVirtualStatus)
	mergeOption(explicit("prometheus-textfile"), &opts.PrometheusTextfile, fileOpts.PrometheusTextfile)
	mergeOption(explicit("logfile"), &opts.LogFile, fileOpts.LogFile)
	mergeOption(explicit("debug"), &opts.Debug, fileOpts.Debug)

	return nil
}

func mergeOption[T any](explicit bool, dst, src *T) {
	if explicit || src == nil {
		return
	}
	*dst = *src
}

func (opts *checkOpts) config() *Config {
	return &Config{
		Host:        opts.Host,
		Port:        opts.Port,
		VirtualPort: opts.VirtualPort,
		Timeout:     time.Duration(opts.Timeout) * time.Second,
		Username:    opts.Username,
		Password:    opts.Password,
		PacketLoss: ThresholdSpec[float64]{
			Warning:  opts.WarningPacketLoss,
			Critical: opts.CriticalPacketLoss,
		},
		Ping: ThresholdSpec[int64]{
			Warning:  opts.WarningPing,
			Critical: opts.CriticalPing,
		},
		Clients: ThresholdSpec[int64]{
			Warning:  opts.WarningClients,
			Critical: opts.CriticalClients,
		},
		MinimalUptime:       opts.MinimalUptime,
		IgnoreReservedSlots: opts.IgnoreReservedSlots,
		IgnoreVirtualStatus: opts.IgnoreVirtualStatus,
		Debug:               opts.Debug,
		LogFile:             opts.LogFile,
		PrometheusTextfile:  opts.PrometheusTextfile,
	}
}

var validate = validator.New()

// Validate checks value ranges of the configuration.
func (cfg *Config) Validate() error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var valErrs validator.ValidationErrors
	if !errors.As(err, &valErrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	problems := make([]string, 0, len(valErrs))
	for _, fieldErr := range valErrs {
		field := strings.TrimPrefix(fieldErr.Namespace(), "Config.")
		switch fieldErr.Tag() {
		case "required":
			problems = append(problems, fmt.Sprintf("%s is required", field))
		case "required_with":
			problems = append(problems, fmt.Sprintf("%s is required with %s", field, fieldErr.Param()))
		default:
			problems = append(problems, fmt.Sprintf("%s must be %s %s (got %v)", field, fieldErr.Tag(), fieldErr.Param(), fieldErr.Value()))
		}
	}

	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
}
