package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverError turns a panic into an error on *errp so the caller can take
// its failure path. It must be deferred directly:
//
//	func fetch() (err error) {
//		defer observability.RecoverError(logger, "external fetch", &err)
//		...
//	}
func RecoverError(logger *Logger, op string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	logger.WithFields(map[string]interface{}{
		"panic": r,
		"stack": string(debug.Stack()),
		"op":    op,
	}).Error("PANIC recovered")
	if errp != nil {
		*errp = fmt.Errorf("%s panicked: %v", op, r)
	}
}
