package config

import (
	"io"
	"log"
	"strings"

	"github.com/hashicorp/logutils"
)

var levels = []logutils.LogLevel{"DEBUG", "INFO", "WARN", "ERROR"}

func levelNames() []string {
	ret := make([]string, len(levels))
	for i, l := range levels {
		ret[i] = string(l)
	}
	return ret
}

func validLevel(level string) bool {
	for _, l := range levels {
		if string(l) == strings.ToUpper(level) {
			return true
		}
	}
	return false
}

// SetupLogging routes the standard logger through a level filter. Lines
// are tagged like "[WARN] ..."; untagged lines always pass.
func SetupLogging(level string, w io.Writer) error {
	if !validLevel(level) {
		return invalid("log level", "%q not one of %s", level, strings.Join(levelNames(), ", "))
	}
	filter := &logutils.LevelFilter{
		Levels:   levels,
		MinLevel: logutils.LogLevel(strings.ToUpper(level)),
		Writer:   w,
	}
	log.SetOutput(filter)
	return nil
}
