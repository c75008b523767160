package descriptor

import "github.com/btcsuite/btclog/v2"

// log is the package-wide logger, disabled by default like every btcsuite
// sub-package. Callers wire in a real logger with UseLogger.
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by the descriptor package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
