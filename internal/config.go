package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Port            int           `env:"PORT,required=true"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath  string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath   string        `env:"BLUGE_FILEPATH,required=true"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL,default=15s"`
	StaleAfter      time.Duration `env:"STALE_AFTER,default=10s"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=30s"`
	SearchLimit     int           `env:"SEARCH_LIMIT,default=50"`
	CensoredWords   []string      `env:"CENSORED_WORDS"`
	CharReplacement string        `env:"CHARACTER_REPLACEMENT,default=*"`
	DebugPort       int           `env:"DEBUG_PORT,default=8081"`
}

// CharacterRune enforces that the censoring replacement is one character.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
