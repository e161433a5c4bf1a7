package meetup

import (
	"fmt"
	"time"

	"github.com/golang/glog"
)

// Logging convention in the `meetup` package:
// Info:
//     essential events for abnormal behavior. This level should be silent on normal operation.
//     this includes:
//     - fetch and mutation call failures
//     - channel drops and reconnects
//     - discarded stale responses and stale channel frames
// Error:
//     unrecoverable crash details
// V(2):
//     key events for trace debugging
//     this includes:
//     - registry writes, fetch issue/land, channel frames, tagged with ids
//       that can be used to filter

func Trace(tag string, do func()) {
	trace(tag, func() string {
		do()
		return ""
	})
}

func TraceWithReturnError[R any](tag string, do func() (R, error)) (result R, returnErr error) {
	trace(tag, func() string {
		result, returnErr = do()
		if returnErr != nil {
			return fmt.Sprintf(" err = %s", returnErr)
		}
		return fmt.Sprintf(" = %v", result)
	})
	return
}

func trace(tag string, do func() string) {
	start := time.Now()
	glog.Infof("[%-8s]%s (%d)\n", "start", tag, start.UnixMilli())
	doTag := do()
	end := time.Now()
	millis := float32(end.Sub(start)) / float32(time.Millisecond)
	glog.Infof("[%-8s]%s (%.2fms) (%d)%s\n", "end", tag, millis, end.UnixMilli(), doTag)
}
