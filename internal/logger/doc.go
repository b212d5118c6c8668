// Package logger wraps zap with:
//   - a global sugared logger using a compact console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and runtime level changes,
//   - leveled helpers (Infof, WarnKV, ErrorKV, etc.) that read the logger from a context.
//
// The detector pipeline, the alert server and the listener all log through
// the context they were started with, so every line carries its component name.
package logger
