package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/nasa-jpl/specsweep/gpib"
)

// EnvPrefix marks environment variables that override the config file.
// A double underscore separates nested keys, SPECSWEEP_LOG__LEVEL=debug.
const EnvPrefix = "SPECSWEEP_"

// LogConfig configures logrus
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// BusConfig selects the transports the resource manager is built from
type BusConfig struct {
	GPIB gpib.Config `koanf:"gpib" yaml:"gpib"`

	// Sockets are TCPIP::host::port::SOCKET resources to probe
	Sockets []string `koanf:"sockets" yaml:"sockets"`

	// SocketTimeout bounds every socket exchange
	SocketTimeout time.Duration `koanf:"socket_timeout" yaml:"socket_timeout"`

	// USB enables the USBTMC transport
	USB bool `koanf:"usb" yaml:"usb"`
}

// Config is the effective configuration of a run
type Config struct {
	// ScanWait and Settle are in seconds
	ScanWait float64 `koanf:"scan_wait" yaml:"scan_wait"`
	Settle   float64 `koanf:"settle" yaml:"settle"`

	Laser  string `koanf:"laser" yaml:"laser"`
	LockIn string `koanf:"lockin" yaml:"lockin"`

	FileDir    string `koanf:"file_dir" yaml:"file_dir"`
	FileHeader string `koanf:"file_header" yaml:"file_header"`
	SampleName string `koanf:"sample_name" yaml:"sample_name"`
	Comment    string `koanf:"comment" yaml:"comment"`

	FineTuning    bool    `koanf:"finetuning" yaml:"finetuning"`
	WaveMeas      bool    `koanf:"wavemeas" yaml:"wavemeas"`
	Adaptive      float64 `koanf:"adaptive" yaml:"adaptive"`
	Power         float64 `koanf:"power" yaml:"power"`
	NoMeasurement bool    `koanf:"no_measurement" yaml:"no_measurement"`
	LaserTurnOff  bool    `koanf:"laser_turn_off" yaml:"laser_turn_off"`

	// Drain waits for ctrl-C after the file is saved
	Drain bool `koanf:"drain" yaml:"drain"`

	// Simulate runs against the simulated bench
	Simulate bool `koanf:"simulate" yaml:"simulate"`

	// HTTP is the listen address of the live monitor, off if empty
	HTTP string `koanf:"http" yaml:"http"`

	// Preview, if not empty, is a PNG kept current while sweeping
	Preview string `koanf:"preview" yaml:"preview"`

	// Addresses override entries of instrument.DefaultAddresses
	Addresses map[string]string `koanf:"addresses" yaml:"addresses"`

	Bus BusConfig `koanf:"bus" yaml:"bus"`
	Log LogConfig `koanf:"log" yaml:"log"`
}

// Defaults is the configuration without a file, environment, or flags
func Defaults() Config {
	return Config{
		ScanWait:   1,
		Settle:     2,
		Laser:      "TSL-710",
		LockIn:     "LI5645",
		FileDir:    "Measurement",
		FileHeader: "Drop",
		SampleName: "test",
		Comment:    "no_comment",
		Adaptive:   1e9,
		Power:      1,
		Drain:      true,
		Bus: BusConfig{
			GPIB:          gpib.Config{Port: gpib.AutoPort, Baud: gpib.DefaultBaud, Timeout: gpib.DefaultTimeout},
			SocketTimeout: 3 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// flagSet declares the command line options of the sweep verb
func flagSet() *pflag.FlagSet {
	d := Defaults()
	fs := pflag.NewFlagSet("specsweep", pflag.ContinueOnError)
	fs.Float64P("scan_wait", "w", d.ScanWait, "wait after each wavelength change (s)")
	fs.Float64("settle", d.Settle, "wait after moving to the first wavelength (s)")
	fs.StringP("laser", "l", d.Laser, "laser: TSL-710, TSL-510, TSL-210F or TLB-6500")
	fs.StringP("lockin", "i", d.LockIn, "lock-in: LI5645 or LI5660")
	fs.StringP("file_dir", "d", d.FileDir, "directory the spectra are saved in")
	fs.StringP("sample_name", "s", d.SampleName, "sample name")
	fs.StringP("comment", "c", d.Comment, "comment")
	fs.String("file_header", d.FileHeader, "prefix of the file names")
	fs.BoolP("finetuning", "f", false, "sweep the fine tuning step instead of the wavelength")
	fs.BoolP("wavemeas", "m", false, "read the wavelength meter at every point")
	fs.Float64P("adaptive", "a", d.Adaptive, "intensity above which the step is refined")
	fs.Float64P("power", "p", d.Power, "TSL-210F output power (mW)")
	fs.BoolP("no_measurement", "n", false, "move to the first wavelength and stop")
	fs.Bool("laser_turn_off", false, "turn the TSL-210F diode off")
	fs.Bool("drain", d.Drain, "wait for ctrl-C after saving")
	fs.Bool("simulate", false, "run against the simulated bench")
	fs.String("http", "", "serve the live monitor on this address, e.g. :8000")
	fs.String("preview", "", "keep a PNG preview at this path while sweeping")
	fs.String("log.level", d.Log.Level, "log level")
	fs.String("log.format", d.Log.Format, "log format, text or json")
	fs.String("bus.gpib.port", d.Bus.GPIB.Port, "serial port of the Prologix controller")
	return fs
}

// loadConfig layers defaults, the config file, the environment and the
// command line, in that order.  It returns the positional arguments.
func loadConfig(path string, fs *pflag.FlagSet, args []string) (*koanf.Koanf, []string, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, nil, err
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") { // file missing, who cares
			return nil, nil, errors.Wrap(err, "loading config")
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, nil, err
	}
	if fs == nil {
		return k, args, nil
	}
	if err := fs.Parse(splitArgs(fs, args)); err != nil {
		return nil, nil, err
	}
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, nil, err
	}
	return k, fs.Args(), nil
}

// splitArgs moves the positional arguments behind a "--" so that negative
// numbers like the -2 of "1560 1550 -2" are not taken for flags
func splitArgs(fs *pflag.FlagSet, args []string) []string {
	var flags, pos []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--":
			pos = append(pos, args[i+1:]...)
			i = len(args)
		case isNumber(a) || !strings.HasPrefix(a, "-") || a == "-":
			pos = append(pos, a)
		default:
			flags = append(flags, a)
			if takesValue(fs, a) && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		}
	}
	return append(append(flags, "--"), pos...)
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// takesValue reports whether flag a consumes the next argument
func takesValue(fs *pflag.FlagSet, a string) bool {
	if strings.Contains(a, "=") {
		return false
	}
	var f *pflag.Flag
	switch {
	case strings.HasPrefix(a, "--"):
		f = fs.Lookup(a[2:])
	case len(a) == 2:
		f = fs.ShorthandLookup(a[1:])
	}
	return f != nil && f.NoOptDefVal == ""
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func unmarshal(k *koanf.Koanf) (Config, error) {
	var c Config
	err := k.Unmarshal("", &c)
	return c, err
}
