package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/synthread/nrf-memory/flash"
)

const barWidth = 50

// progressBar renders a single updating line. It is only used on a terminal;
// elsewhere progress goes unreported.
type progressBar struct {
	w     io.Writer
	label string
	last  int
}

// newProgress will return a progress callback for label, or nil when w is
// not a terminal
func newProgress(w io.Writer, label string) (flash.ProgressFunc, func()) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil, func() {}
	}

	pb := &progressBar{w: w, label: label, last: -1}
	return pb.update, pb.finish
}

func (pb *progressBar) update(done, total uint32) {
	if total == 0 {
		return
	}
	permille := int(uint64(done) * 1000 / uint64(total))
	if permille == pb.last {
		return
	}
	pb.last = permille

	fmt.Fprint(pb.w, renderBar(pb.label, done, total))
}

func (pb *progressBar) finish() {
	if pb.last >= 0 {
		fmt.Fprintln(pb.w)
	}
}

// renderBar will draw "label |####    | 12.5%" preceded by a carriage return
func renderBar(label string, done, total uint32) string {
	if done > total {
		done = total
	}
	filled := int(uint64(done) * barWidth / uint64(total))
	pct := float64(done) * 100 / float64(total)
	return fmt.Sprintf("\r%s |%s%s| %.1f%%", label,
		strings.Repeat("#", filled), strings.Repeat(" ", barWidth-filled), pct)
}
