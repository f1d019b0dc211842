package log

import "gopkg.in/natefinch/lumberjack.v2"

// defaultMaxSizeMB is lumberjack's own default; applied here too so a
// config that sets appender=file without a max_size doesn't rotate on
// every single write.
const defaultMaxSizeMB = 100

// FileAppenderOpt configures rotation for a probe running as a
// long-lived daemon, where stdout has nowhere useful to go.
type FileAppenderOpt struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

func (m *MultiWriter) AddFileAppender(options FileAppenderOpt) *MultiWriter {
	maxSize := options.MaxSize
	if maxSize <= 0 {
		maxSize = defaultMaxSizeMB
	}
	writer := &lumberjack.Logger{
		Filename:   options.Filename,
		MaxSize:    maxSize,            // megabytes
		MaxBackups: options.MaxBackups, // number of backups
		MaxAge:     options.MaxAge,     // days
		Compress:   options.Compress,   // compress the backups
	}
	m.writers = append(m.writers, writer)
	return m
}
