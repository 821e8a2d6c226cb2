package main

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/synthread/nrf-memory/flash"
)

// Command is the operation selected on the command line
type Command int

const (
	CommandRead Command = iota + 1
	CommandWrite
	CommandTest
)

var commandNames = map[string]Command{
	"read":  CommandRead,
	"write": CommandWrite,
	"test":  CommandTest,
}

func (c Command) String() string {
	for name, cmd := range commandNames {
		if cmd == c {
			return name
		}
	}
	return "unknown"
}

// ParseCommand will map a command name onto a Command
func ParseCommand(s string) (Command, error) {
	if c, ok := commandNames[strings.ToLower(s)]; ok {
		return c, nil
	}
	return 0, usageError(errors.Errorf("unknown command %q (want read, write or test)", s))
}

// options is the validated configuration of one invocation. It is built
// once by parseArgs and only read afterwards.
type options struct {
	command Command

	family    flash.Family
	region    flash.Region
	serial    string
	qspiConf  string
	resetGPIO int

	outputFile string
	dump       bool

	inputFile string

	pattern   flash.Pattern
	fullTest  bool
	testCount uint32

	probe    string
	simImage string
	simSize  uint32
	nrfjprog string

	logLevel  string
	logFormat string
}

// errHelp is returned by parseArgs once help has been printed
var errHelp = errors.New("help requested")

func usageError(err error) error {
	return &flash.Error{Kind: flash.KindConfiguration, Op: "parse arguments", Err: err}
}

// rawParams holds the flag values before validation
type rawParams struct {
	family    string
	saddr     string
	size      string
	serial    string
	conf      string
	resetGPIO int

	ofile string
	dump  bool

	ifile string

	pattern   string
	fullTest  bool
	testCount uint32

	probe    string
	simImage string
	simSize  string
	nrfjprog string

	logLevel  string
	logFormat string
	defaults  string
}

func newFlagSet(cmd Command, p *rawParams, output io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(cmd.String(), pflag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&p.family, "family", "AUTO", "device family (NRF52, NRF53, NRF91); detected when AUTO")
	fs.StringVar(&p.saddr, "saddr", "0x0", "start address (hex)")
	fs.StringVar(&p.size, "size", "65536", "size in bytes (decimal or 0x-prefixed hex)")
	fs.StringVar(&p.serial, "serial", "", "J-Link serial number; the attached probe is used when empty")
	fs.StringVar(&p.conf, "conf", flash.DefaultQSPIConfig, "QSPI configuration file")
	fs.IntVar(&p.resetGPIO, "reset-gpio", 0, "host GPIO wired to the target reset line (0 = none)")

	switch cmd {
	case CommandRead:
		fs.StringVar(&p.ofile, "ofile", "omemory_data.bin", "output binary file")
		fs.BoolVar(&p.dump, "dump", false, "also write a hex dump next to the output file")
	case CommandWrite:
		fs.StringVar(&p.ifile, "ifile", "imemory_data.bin", "input binary file")
	case CommandTest:
		fs.StringVar(&p.pattern, "pattern", flash.DefaultPattern.String(), "1 to 4 byte hex test pattern")
		fs.BoolVar(&p.fullTest, "fulltest", false, "test the whole device instead of sampled blocks")
		fs.Uint32Var(&p.testCount, "testcount", flash.DefaultTestCount, "number of blocks checked by a sampled test")
	}

	fs.StringVar(&p.probe, "probe", "nrfjprog", "probe backend (nrfjprog or sim)")
	fs.StringVar(&p.simImage, "sim-image", "", "image file backing the sim probe")
	fs.StringVar(&p.simSize, "sim-size", "0x800000", "flash size of the sim probe")
	fs.StringVar(&p.nrfjprog, "nrfjprog", "nrfjprog", "nrfjprog executable")
	fs.StringVar(&p.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.StringVar(&p.logFormat, "log-format", "text", "log format (text or json)")
	fs.StringVar(&p.defaults, "defaults", "", "YAML file with default flag values")
	fs.BoolP("help", "h", false, "show help")

	return fs
}

// parseArgs will parse a command line of the form COMMAND [flags]. Flags not
// given explicitly fall back to the defaults file when one is named.
func parseArgs(args []string, output io.Writer) (options, error) {
	if len(args) == 0 {
		return options{}, usageError(errors.New("missing command"))
	}

	cmd, err := ParseCommand(args[0])
	if err != nil {
		return options{}, err
	}

	var p rawParams
	fs := newFlagSet(cmd, &p, output)
	if err := fs.Parse(args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return options{}, errHelp
		}
		return options{}, usageError(err)
	}
	if help, _ := fs.GetBool("help"); help {
		fs.PrintDefaults()
		return options{}, errHelp
	}
	if fs.NArg() > 0 {
		return options{}, usageError(errors.Errorf("unexpected argument %q", fs.Arg(0)))
	}

	if p.defaults != "" {
		d, err := loadDefaults(p.defaults)
		if err != nil {
			return options{}, err
		}
		if err := d.apply(fs); err != nil {
			return options{}, err
		}
	}

	return p.validate(cmd)
}

func (p rawParams) validate(cmd Command) (options, error) {
	o := options{
		command:    cmd,
		serial:     p.serial,
		qspiConf:   p.conf,
		resetGPIO:  p.resetGPIO,
		outputFile: p.ofile,
		dump:       p.dump,
		inputFile:  p.ifile,
		fullTest:   p.fullTest,
		testCount:  p.testCount,
		probe:      strings.ToLower(p.probe),
		simImage:   p.simImage,
		nrfjprog:   p.nrfjprog,
		logLevel:   p.logLevel,
		logFormat:  p.logFormat,
	}

	var err error
	if o.family, err = flash.ParseFamily(p.family); err != nil {
		return options{}, err
	}
	if o.region.Start, err = parseAddress(p.saddr); err != nil {
		return options{}, err
	}
	if o.region.Size, err = parseSize(p.size); err != nil {
		return options{}, err
	}
	if err := o.region.Validate(); err != nil {
		return options{}, err
	}

	if cmd == CommandTest {
		if o.pattern, err = flash.ParsePattern(p.pattern); err != nil {
			return options{}, err
		}
		if !o.fullTest && (o.testCount == 0 || flash.BlockCount(o.region.Size) < o.testCount) {
			return options{}, usageError(errors.Errorf("set the '--size' value more at least 0x%X",
				flash.MinSampledSize(o.testCount)))
		}
	}

	switch o.probe {
	case "nrfjprog":
	case "sim":
		if o.simSize, err = parseSize(p.simSize); err != nil {
			return options{}, err
		}
	default:
		return options{}, usageError(errors.Errorf("unknown probe %q (want nrfjprog or sim)", p.probe))
	}

	if o.resetGPIO < 0 {
		return options{}, usageError(errors.Errorf("reset gpio %d is negative", o.resetGPIO))
	}

	return o, nil
}

// parseAddress will parse a hex address, with or without a 0x prefix
func parseAddress(s string) (uint32, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, usageError(errors.Wrapf(err, "start address %q", s))
	}
	return uint32(v), nil
}

// parseSize will parse a decimal size, or hex when given a 0x prefix
func parseSize(s string) (uint32, error) {
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	v, err := strconv.ParseUint(digits, base, 32)
	if err != nil {
		return 0, usageError(errors.Wrapf(err, "size %q", s))
	}
	return uint32(v), nil
}
