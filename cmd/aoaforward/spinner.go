package main

import (
	"time"

	"github.com/theckman/yacspin"
)

// startSpinner shows progress while enumeration and the handshake run;
// both can take several seconds of retries.  A nil return (non-terminal
// output, config error) is fine, stopSpinner tolerates it.
func startSpinner() *yacspin.Spinner {
	cfg := yacspin.Config{
		Frequency: 100 * time.Millisecond,
		CharSet:   yacspin.CharSets[59],
		Suffix:    " waiting for accessory device",
	}
	s, err := yacspin.New(cfg)
	if err != nil {
		return nil
	}
	if err := s.Start(); err != nil {
		return nil
	}
	return s
}

func stopSpinner(s *yacspin.Spinner) {
	if s != nil {
		s.Stop()
	}
}
