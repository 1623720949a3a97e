package authgate

import (
	"log"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// Logger is the logging interface of the gateway. Adapters for the common
// structured loggers are provided below; anything with printf-style leveled
// methods can satisfy it directly.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DefaultLogger writes through the standard library log package. Used when
// nothing better is wired.
type DefaultLogger struct{}

func (l *DefaultLogger) Debugf(format string, args ...interface{}) {
	log.Printf("DEBUG: "+format, args...)
}
func (l *DefaultLogger) Infof(format string, args ...interface{}) {
	log.Printf("INFO: "+format, args...)
}
func (l *DefaultLogger) Warnf(format string, args ...interface{}) {
	log.Printf("WARN: "+format, args...)
}
func (l *DefaultLogger) Errorf(format string, args ...interface{}) {
	log.Printf("ERROR: "+format, args...)
}

// NewLogrusLogger returns a Logger adapter for logrus.FieldLogger.
func NewLogrusLogger(l logrus.FieldLogger) Logger {
	return &logrusAdapter{l}
}

type logrusAdapter struct{ l logrus.FieldLogger }

func (a *logrusAdapter) Debugf(format string, args ...interface{}) { a.l.Debugf(format, args...) }
func (a *logrusAdapter) Infof(format string, args ...interface{})  { a.l.Infof(format, args...) }
func (a *logrusAdapter) Warnf(format string, args ...interface{})  { a.l.Warnf(format, args...) }
func (a *logrusAdapter) Errorf(format string, args ...interface{}) { a.l.Errorf(format, args...) }

// NewZapLogger returns a Logger adapter for zap.SugaredLogger.
func NewZapLogger(l *zap.SugaredLogger) Logger {
	return &zapAdapter{l}
}

type zapAdapter struct{ l *zap.SugaredLogger }

func (a *zapAdapter) Debugf(format string, args ...interface{}) { a.l.Debugf(format, args...) }
func (a *zapAdapter) Infof(format string, args ...interface{})  { a.l.Infof(format, args...) }
func (a *zapAdapter) Warnf(format string, args ...interface{})  { a.l.Warnf(format, args...) }
func (a *zapAdapter) Errorf(format string, args ...interface{}) { a.l.Errorf(format, args...) }

// NewZerologLogger returns a Logger adapter for zerolog.Logger.
func NewZerologLogger(l zerolog.Logger) Logger {
	return &zerologAdapter{l}
}

type zerologAdapter struct{ l zerolog.Logger }

func (a *zerologAdapter) Debugf(format string, args ...interface{}) {
	a.l.Debug().Msgf(format, args...)
}
func (a *zerologAdapter) Infof(format string, args ...interface{}) {
	a.l.Info().Msgf(format, args...)
}
func (a *zerologAdapter) Warnf(format string, args ...interface{}) {
	a.l.Warn().Msgf(format, args...)
}
func (a *zerologAdapter) Errorf(format string, args ...interface{}) {
	a.l.Error().Msgf(format, args...)
}
