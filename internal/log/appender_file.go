package log

import "gopkg.in/natefinch/lumberjack.v2"

// FileAppenderOpt configures a rotating log file.
type FileAppenderOpt struct {
	Filename   string
	MaxSize    int // MB before rotation
	MaxBackups int
	MaxAge     int // days to keep rotated files
	Compress   bool
}

// AddFileAppender appends a size-rotated log file.
func (m *MultiWriter) AddFileAppender(opt FileAppenderOpt) *MultiWriter {
	return m.Add(&lumberjack.Logger{
		Filename:   opt.Filename,
		MaxSize:    opt.MaxSize,
		MaxBackups: opt.MaxBackups,
		MaxAge:     opt.MaxAge,
		Compress:   opt.Compress,
	})
}
