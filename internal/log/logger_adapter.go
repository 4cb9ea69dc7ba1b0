package log

import (
	"github.com/sirupsen/logrus"
)

// logrusAdapter satisfies Logger with an embedded entry. The level methods
// are promoted from *logrus.Entry; only the field builders need wrapping
// so they keep returning a Logger.
type logrusAdapter struct {
	*logrus.Entry
}

func wrap(e *logrus.Entry) Logger {
	return &logrusAdapter{Entry: e}
}

func (a *logrusAdapter) WithField(field string, value interface{}) Logger {
	return wrap(a.Entry.WithField(field, value))
}

func (a *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return wrap(a.Entry.WithFields(fields))
}

func (a *logrusAdapter) WithError(err error) Logger {
	return wrap(a.Entry.WithError(err))
}

func (a *logrusAdapter) IsTraceEnabled() bool { return a.Logger.IsLevelEnabled(logrus.TraceLevel) }
func (a *logrusAdapter) IsDebugEnabled() bool { return a.Logger.IsLevelEnabled(logrus.DebugLevel) }
func (a *logrusAdapter) IsInfoEnabled() bool  { return a.Logger.IsLevelEnabled(logrus.InfoLevel) }

func (a *logrusAdapter) GetEntry() interface{} {
	return a.Entry
}
