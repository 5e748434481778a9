// Package dedupe remembers recently seen tool-call invocation ids so that a
// batch redelivered by the model within the TTL window is acknowledged again
// without re-running plugin handlers.
package dedupe
