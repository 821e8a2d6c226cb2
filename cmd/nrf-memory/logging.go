package main

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// setupLogging will point the logrus standard logger at w with the requested
// level and format
func setupLogging(w io.Writer, level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return usageError(errors.Wrap(err, "log level"))
	}

	switch format {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return usageError(errors.Errorf("unknown log format %q (want text or json)", format))
	}

	logrus.SetOutput(w)
	logrus.SetLevel(lvl)
	return nil
}
