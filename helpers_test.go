package k4a

import (
	"testing"

	"github.com/benbjohnson/clock"

	"go.viam.com/k4a/logging"
	"go.viam.com/k4a/native/fake"
)

func newFake(t *testing.T, clk clock.Clock) *fake.Library {
	t.Helper()
	return fake.New(fake.Options{Devices: 2, Clock: clk, Logger: logging.NewTestLogger(t)})
}
