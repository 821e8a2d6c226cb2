package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/synthread/nrf-memory/flash"
	"github.com/synthread/nrf-memory/flash/nrfjprog"
	"github.com/synthread/nrf-memory/flash/sim"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

// sleep is the settle delay used by the target, replaced in tests
var sleep = time.Sleep

var errBanner = strings.Repeat("!", 72)

// run will execute one command and return the process exit code
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && (args[0] == "-v" || args[0] == "--version") {
		fmt.Fprintln(stdout, version())
		return exitOK
	}
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprint(stdout, usage)
		if len(args) == 0 {
			return exitUsage
		}
		return exitOK
	}

	o, err := parseArgs(args, stdout)
	if err == errHelp {
		return exitOK
	}
	if err != nil {
		printErr(stderr, err)
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	if err := setupLogging(stderr, o.logLevel, o.logFormat); err != nil {
		printErr(stderr, err)
		return exitUsage
	}

	if err := execute(o, stdout); err != nil {
		printErr(stderr, err)
		if flash.IsKind(err, flash.KindConfiguration) {
			return exitUsage
		}
		return exitFail
	}
	return exitOK
}

func printErr(w io.Writer, err error) {
	fmt.Fprintf(w, "\n%s\n%v\n%s\n", errBanner, err, errBanner)
}

func newProbe(o options) (flash.Probe, error) {
	switch o.probe {
	case "sim":
		return sim.New(sim.Config{
			Size:   o.simSize,
			Family: familyOrDefault(o.family),
			Image:  o.simImage,
		}), nil
	default:
		p, err := nrfjprog.New(nrfjprog.Config{
			Family: o.family,
			Binary: o.nrfjprog,
		})
		if err != nil {
			return nil, &flash.Error{Kind: flash.KindConfiguration, Op: "select probe", Err: err}
		}
		return p, nil
	}
}

func familyOrDefault(f flash.Family) string {
	if f == flash.FamilyAuto {
		return flash.FamilyNRF52.String()
	}
	return f.String()
}

// execute will open the target, run the command and always release the
// target before returning
func execute(o options, stdout io.Writer) (err error) {
	var inputSize int64
	if o.command == CommandWrite {
		// the input must exist before anything on the target is touched
		fi, err := os.Stat(o.inputFile)
		if err != nil {
			return &flash.Error{Kind: flash.KindFile, Op: "open input", Err: err}
		}
		if fi.IsDir() {
			return &flash.Error{Kind: flash.KindFile, Op: "open input", Err: errors.Errorf("%s is a directory", o.inputFile)}
		}
		inputSize = fi.Size()
	}

	probe, err := newProbe(o)
	if err != nil {
		return err
	}

	progress, finish := newProgress(stdout, progressLabel(o))
	defer finish()

	target, err := flash.NewTarget(probe, &flash.Config{
		Family:     o.family,
		Serial:     o.serial,
		QSPIConfig: o.qspiConf,
		ResetGPIO:  o.resetGPIO,
		Progress:   progress,
		Sleep:      sleep,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := target.Close(); cerr != nil && err == nil {
			err = &flash.Error{Kind: flash.KindConnection, Op: "close", Err: cerr}
		}
	}()

	if err := target.Open(); err != nil {
		return err
	}

	id, err := target.Identify()
	if err != nil {
		return err
	}
	printParameters(stdout, o, id, inputSize)

	switch o.command {
	case CommandRead:
		return readCommand(target, o, stdout)
	case CommandWrite:
		return writeCommand(target, o, stdout, inputSize)
	case CommandTest:
		return testCommand(target, o, stdout)
	}
	return usageError(errors.Errorf("unhandled command %s", o.command))
}

func progressLabel(o options) string {
	switch o.command {
	case CommandRead:
		return "Reading"
	case CommandWrite:
		return "Writing"
	}
	return "Testing"
}

func readCommand(target *flash.Target, o options, stdout io.Writer) error {
	f, err := os.Create(o.outputFile)
	if err != nil {
		return &flash.Error{Kind: flash.KindFile, Op: "create output", Err: err}
	}
	defer f.Close()

	fmt.Fprintln(stdout, "Reading from target...")
	res, err := target.ReadRegion(f, o.region, o.dump)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return &flash.Error{Kind: flash.KindFile, Op: "close output", Err: err}
	}

	if o.dump {
		if err := flash.WriteHexDumpFile(flash.DumpFileName(o.outputFile), res.Data, o.region.Start); err != nil {
			return err
		}
	}

	logrus.WithField("bytes", res.Transferred).Debug("read complete")
	fmt.Fprintln(stdout, "Reading Done")
	return nil
}

func writeCommand(target *flash.Target, o options, stdout io.Writer, size int64) error {
	fmt.Fprintln(stdout, "Writing binary to target...")
	if err := target.WritePayloadFromFile(o.inputFile, o.region.Start); err != nil {
		return err
	}
	logrus.WithField("bytes", size).Debug("write complete")
	fmt.Fprintln(stdout, "Writing Done")
	return nil
}

func testCommand(target *flash.Target, o options, stdout io.Writer) error {
	fmt.Fprintln(stdout, "Start Flash test...")

	var err error
	if o.fullTest {
		err = target.TestFull(o.pattern, o.region.Start)
	} else {
		err = target.TestSampled(o.pattern, o.region, o.testCount)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, "Verification completed")
	return nil
}

func printParameters(w io.Writer, o options, id flash.Identity, inputSize int64) {
	fmt.Fprintln(w, "--------------------- Parameters -----------------------")
	fmt.Fprintf(w, "Device Family   \t: %s\n", id.Family)
	fmt.Fprintf(w, "Debugger Serial \t: %s\n", id.Serial)
	fmt.Fprintf(w, "Start address   \t: 0x%X\n", o.region.Start)

	switch o.command {
	case CommandRead:
		fmt.Fprintf(w, "Read Size       \t: %d(0x%x) Byte(s)\n", o.region.Size, o.region.Size)
		fmt.Fprintf(w, "Output File     \t: %s\n", o.outputFile)
		if o.dump {
			fmt.Fprintf(w, "Dump File       \t: %s\n", flash.DumpFileName(o.outputFile))
		}
	case CommandWrite:
		fmt.Fprintf(w, "Input File      \t: %s\n", o.inputFile)
		fmt.Fprintf(w, "File Size       \t: %d(0x%x) Byte(s)\n", inputSize, inputSize)
	case CommandTest:
		size := o.region.Size
		if o.fullTest {
			size = id.FlashSize
		}
		fmt.Fprintf(w, "Size            \t: %d(0x%x) Byte(s)\n", size, size)
	}

	fmt.Fprintf(w, "Config File     \t: %s\n", o.qspiConf)
	if o.command == CommandTest {
		fmt.Fprintf(w, "Test pattern    \t: %s\n", o.pattern)
	}
	fmt.Fprintln(w, "--------------------------------------------------------")
}
