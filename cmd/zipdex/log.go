// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

// namedFormatter tags every record with the component that produced it.
type namedFormatter struct {
	name      string
	formatter logrus.Formatter
}

func (f namedFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	entry.Data["component"] = f.name
	return f.formatter.Format(entry)
}

// newLogger writes to stderr so stdout stays usable for dumped payloads.
func newLogger(name, level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(lvl)
	logger.SetFormatter(namedFormatter{
		name:      name,
		formatter: &logrus.TextFormatter{DisableTimestamp: true},
	})
	return logger, nil
}
