// Package log is the logging seam of swarmcoord.
//
// Components depend on the four-method Logger interface only. The CLI
// plugs in a zerolog logger:
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//	coordLog := log.With(logger, log.Component("coordinator"))
//
// Libraries that are given no logger use Discard. Any other logging
// library can be used by implementing Logger.
package log
