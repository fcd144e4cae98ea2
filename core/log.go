package core

import "github.com/rs/zerolog"

type Log interface {
	Info() *zerolog.Event
	Debug() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
}

// NopLog discards everything, for tests and optional wiring.
type NopLog struct{}

var nop = zerolog.Nop()

func (NopLog) Info() *zerolog.Event  { return nop.Info() }
func (NopLog) Debug() *zerolog.Event { return nop.Debug() }
func (NopLog) Warn() *zerolog.Event  { return nop.Warn() }
func (NopLog) Error() *zerolog.Event { return nop.Error() }
