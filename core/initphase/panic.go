package initphase

import "fmt"

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("initphase: delegate panicked: %w", err)
	}
	return fmt.Errorf("initphase: delegate panicked: %v", r)
}
