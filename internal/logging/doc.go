// Package logging configures structured JSON logging for the fsindex daemon
// and CLI. Logs go to a size-rotated file under ~/.fsindex/logs/ and,
// optionally, to stderr. With --debug the level drops to debug.
package logging
