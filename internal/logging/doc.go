// Package logging configures structured JSON logging for filesearch.
//
// Interactive commands log to stderr at warn level unless --debug is given,
// in which case debug logs are also written to ~/.filesearch/logs/filesearch.log.
// The daemon always logs to the rotating file and never to the terminal it
// was started from.
package logging
