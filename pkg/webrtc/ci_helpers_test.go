package webrtc

import (
	"os"
	"runtime"
	"testing"
	"time"
)

// ciTestConfig holds CI-specific test adjustments.
type ciTestConfig struct {
	IsCI              bool
	TimeoutMultiplier float64
}

// getCITestConfig returns test configuration based on the environment.
func getCITestConfig() *ciTestConfig {
	config := &ciTestConfig{TimeoutMultiplier: 1.0}

	if os.Getenv("CI") == "true" ||
		os.Getenv("GITHUB_ACTIONS") == "true" ||
		os.Getenv("CONTINUOUS_INTEGRATION") == "true" {
		config.IsCI = true
		config.TimeoutMultiplier = 2.0

		if runtime.GOOS == "windows" {
			config.TimeoutMultiplier = 3.0
		}
		if runtime.NumCPU() <= 2 {
			config.TimeoutMultiplier *= 1.5
		}
	}
	return config
}

// adjustTimeout scales a timeout for slow CI machines.
func (c *ciTestConfig) adjustTimeout(base time.Duration) time.Duration {
	return time.Duration(float64(base) * c.TimeoutMultiplier)
}

// skipNetworkTest skips tests that need real ICE connectivity when asked to.
func (c *ciTestConfig) skipNetworkTest(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping network test in short mode")
	}
	if c.IsCI && os.Getenv("SKIP_NETWORK_TESTS") == "true" {
		t.Skip("Skipping network test in CI environment")
	}
}
