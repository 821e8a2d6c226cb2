// nrf-memory reads, writes and tests the external QSPI flash of an nRF
// target through a debug probe.
//
//	nrf-memory read --saddr=0x1200 --size=4096 --ofile=memorydata.bin
//	nrf-memory write --ifile=memory.bin
//	nrf-memory test --pattern=0x55555555
package main

import (
	"fmt"
	"os"
)

const appVersion = "v0.6"

const usage = `Usage:
    nrf-memory COMMAND [--family=<DeviceFamily>] [--saddr=<startaddress>] [--size=<n>]
                       [--ofile=<filename>.bin] [--ifile=<filename>.bin] [--serial=<serialno.>]
                       [--conf=<ini_file>] [--dump] [--pattern=<pattern>] [--fulltest]
    nrf-memory (-h | --help | -v | --version)

Commands:
    read     Read binary from the given QSPI address
    write    Write binary to the given QSPI address
    test     Memory test

Run "nrf-memory COMMAND --help" for the flags of a command.
`

func version() string {
	return fmt.Sprintf("nrf-memory %s", appVersion)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
