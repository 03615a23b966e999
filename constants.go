package gostream

import "github.com/behrlich/gostream/internal/constants"

// Re-export buffer and timing constants for the public API.
const (
	DefaultBufferSize       = constants.DefaultBufferSize
	DefaultOptimalBlockSize = constants.DefaultOptimalBlockSize
	MaxOptimalBlockSize     = constants.MaxOptimalBlockSize
	MinReadaheadSize        = constants.MinReadaheadSize
	IOVMax                  = constants.IOVMax
	MaxSendfileSize         = constants.MaxSendfileSize
	DefaultEpollTimeout     = constants.DefaultEpollTimeout
	NotifyDebounce          = constants.NotifyDebounce
)
