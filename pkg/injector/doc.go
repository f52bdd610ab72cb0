// Package injector brings the peer module into existence inside the target
// process and tracks its liveness. Injection mutates the target process and
// is the only operation in the client with side effects outside the IPC
// channels, so it is never retried automatically.
package injector
