package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	yml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/specsweep/gpib"
	"github.com/nasa-jpl/specsweep/instrument"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "specsweep.yml"
)

func root() {
	str := `specsweep measures single wavelength spectra with a tunable laser and a lock-in amplifier

Usage:
	specsweep <command> [options]

Commands:
	sweep <wv_init> <wv_last> <wv_step>
	resources
	idn
	ports
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `specsweep steps a tunable laser from wv_init to wv_last and records the
lock-in reading at every point.  Press ctrl-C to end the sweep early; the rows
measured so far are saved.  The spectrum is written to
<file_dir>/<file_header>_<YYYYMMDD>_<NN>.txt with a PNG plot beside it.

Configuration is read from specsweep.yml, then SPECSWEEP_* environment
variables, then the command line.  "specsweep mkconf" writes the defaults.

Options of the sweep verb:
` + flagSet().FlagUsages() + `
Lasers, with their default GPIB addresses:
- santec TSL-710 GPIB0::17, TSL-510 GPIB0::12, TSL-210F GPIB0::11
- New Focus TLB-6500 GPIB0::11 (shared with the TSL-210F)

Lock-ins: NF LI5645 GPIB0::2, LI5660 GPIB0::6
Wavelength meter: Keysight 86120 GPIB0::7

In fine tuning mode (-f) wv_init, wv_last and wv_step are raw fine tuning
steps of -0.5 pm each, relative to the wavelength the laser is parked at:
	specsweep sweep -f -100 100 1`
	fmt.Println(str)
}

func mkconf(c Config) error {
	f, err := os.Create(ConfigFileName)
	if err != nil {
		return err
	}
	defer f.Close()
	return yml.NewEncoder(f).Encode(c)
}

func printconf(w io.Writer, c Config) error {
	return yml.NewEncoder(w).Encode(c)
}

func pversion() {
	fmt.Printf("specsweep version %v\n", Version)
}

func setupLogger(cfg LogConfig) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}
	return log
}

// resources prints the live resources of the configured bus
func resources(w io.Writer, c Config, log logrus.FieldLogger) error {
	bus, closer, err := openBus(c, log)
	if err != nil {
		return err
	}
	defer closer()
	l, err := bus.ListResources()
	if err != nil {
		return err
	}
	for _, r := range l {
		fmt.Fprintln(w, r)
	}
	return nil
}

// identify prints the *IDN? reply of every live resource, with the
// nicknames that point at it
func identify(w io.Writer, c Config, log logrus.FieldLogger) error {
	bus, closer, err := openBus(c, log)
	if err != nil {
		return err
	}
	defer closer()
	reg := instrument.NewRegistry(bus, addresses(c), log, instrument.WithLogger(log))
	defer reg.Close()
	ids, err := reg.Identify()
	if err != nil {
		return err
	}
	nicks := make(map[string][]string)
	for _, n := range reg.Nicknames() {
		addr, _ := reg.Address(n)
		nicks[addr] = append(nicks[addr], n)
	}
	addrs := make([]string, 0, len(ids))
	for a := range ids {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	for _, a := range addrs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", a, strings.Join(nicks[a], ","), ids[a])
	}
	return nil
}

func ports(w io.Writer) error {
	ps, err := gpib.Ports()
	if err != nil {
		return err
	}
	for _, p := range ps {
		if p.USB {
			fmt.Fprintf(w, "%s\tUSB %s:%s\t%s\t%s\n", p.Name, p.VID, p.PID, p.Serial, p.Product)
		} else {
			fmt.Fprintln(w, p.Name)
		}
	}
	return nil
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	cmd := strings.ToLower(args[1])
	var err error
	switch cmd {
	case "help":
		help()
		return
	case "version":
		pversion()
		return
	case "sweep":
		err = sweepCmd(args[2:])
	default:
		err = verb(cmd, args[2:])
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// verb runs the commands that only need the configuration
func verb(cmd string, args []string) error {
	k, _, err := loadConfig(ConfigFileName, flagSet(), args)
	if err != nil {
		return err
	}
	c, err := unmarshal(k)
	if err != nil {
		return err
	}
	log := setupLogger(c.Log)
	switch cmd {
	case "mkconf":
		return mkconf(c)
	case "conf":
		return printconf(os.Stdout, c)
	case "resources":
		return resources(os.Stdout, c, log)
	case "idn":
		return identify(os.Stdout, c, log)
	case "ports":
		return ports(os.Stdout)
	default:
		return fmt.Errorf("unknown command %q, try specsweep help", cmd)
	}
}

func sweepCmd(args []string) error {
	k, pos, err := loadConfig(ConfigFileName, flagSet(), args)
	if err != nil {
		return err
	}
	c, err := unmarshal(k)
	if err != nil {
		return err
	}
	rng, err := parseRange(pos)
	if err != nil {
		return err
	}
	r := &runner{Config: c, Range: rng, Log: setupLogger(c.Log)}
	_, err = r.Run(context.Background())
	return err
}
