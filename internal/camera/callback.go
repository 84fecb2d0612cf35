package camera

import (
	"fmt"
	"strings"

	"github.com/banshee-data/depthcam/internal/frame"
)

// CallbackType selects how far through the pipeline a frame travels before
// it is delivered.
type CallbackType int

const (
	CallbackRawUnprocessed CallbackType = iota
	CallbackRawProcessed
	CallbackDepth
	CallbackPointCloud
)

var callbackNames = [...]string{
	CallbackRawUnprocessed: "raw",
	CallbackRawProcessed:   "raw_processed",
	CallbackDepth:          "depth",
	CallbackPointCloud:     "pointcloud",
}

func (t CallbackType) String() string {
	if t.valid() {
		return callbackNames[t]
	}
	return fmt.Sprintf("CallbackType(%d)", int(t))
}

func (t CallbackType) valid() bool {
	return t >= CallbackRawUnprocessed && t <= CallbackPointCloud
}

// ParseCallbackType accepts the names printed by String.
func ParseCallbackType(s string) (CallbackType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range callbackNames {
		if n == s {
			return CallbackType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown callback type %q: %w", s, ErrConfiguration)
}

// Callback receives each delivered frame on the capture goroutine. The
// frame returns to its pool when the callback returns and must not be
// retained. A callback may call Stop but must not call Wait or Close.
type Callback func(cam *Camera, f frame.Frame, t CallbackType)

type callbackSlot struct {
	typ CallbackType
	fn  Callback
}
