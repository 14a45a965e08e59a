package vehicle

import "errors"

var (
	ErrUnknownPreset = errors.New("unknown vehicle preset")
	ErrNoBody        = errors.New("no such vehicle body")
	ErrNotSingleton  = errors.New("controller does not own exactly one authority vehicle")
	ErrOrphanTire    = errors.New("tire owner body not found")
	ErrTowCycle      = errors.New("towing chain loops back on itself")
	ErrNoAuthority   = errors.New("preset has no drive authority")
)
