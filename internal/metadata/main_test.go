package metadata

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures opening and closing real sqlite connections across this
// package's tests doesn't leak the driver's background goroutines.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
