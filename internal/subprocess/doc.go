// Package subprocess spawns language server processes.
//
// Launch resolves the server binary, starts it with stdin, stdout and stderr
// fully redirected to pipes, and hands back a Process whose pipe ends are
// owned by the caller. MonitorStderr drains the error stream into the log.
package subprocess
