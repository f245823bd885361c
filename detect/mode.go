package detect

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Mode selects what the detector pushes downstream.
type Mode int

const (
	// ModeAnnotate attaches the detections to the incoming buffer, copying
	// it only when it is shared.
	ModeAnnotate Mode = iota
	// ModeCopy pushes a copy carrying the detections and leaves the
	// incoming buffer untouched.
	ModeCopy
	// ModeDerive pushes a new buffer whose payload is the JSON encoded
	// detections, with the incoming buffer's timing.
	ModeDerive
)

func (m Mode) String() string {
	switch m {
	case ModeAnnotate:
		return "annotate"
	case ModeCopy:
		return "copy"
	case ModeDerive:
		return "derive"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses the name of a mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "annotate":
		return ModeAnnotate, nil
	case "copy":
		return ModeCopy, nil
	case "derive":
		return ModeDerive, nil
	}
	return 0, errors.Errorf("unknown detector mode %q", s)
}
