package lipsync

import "errors"

// Conditions the core absorbs. They are logged, never returned: every one of
// them degrades to the neutral pose.
var (
	ErrMissingMorphTargets = errors.New("mesh has no morph target influences")
	ErrEmptyTimingTable    = errors.New("timing table has no windows")
	ErrDegenerateWindow    = errors.New("timing window has zero length or no symbols")
	ErrClockDesync         = errors.New("playback position outside all timing windows")
)
