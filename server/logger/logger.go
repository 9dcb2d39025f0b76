package logger

import (
	"io"

	"github.com/go-zookeeper/zk"
	log "github.com/sirupsen/logrus"
)

// Logger interface is used to allow tests to inject custom loggers.
type Logger interface {
	Fatalf(string, ...interface{})
	Debugf(string, ...interface{})
	Errorf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Debug(...interface{})
	Warn(...interface{})
	Info(...interface{})
	Fatal(...interface{})
	Writer() io.Writer
	SetWriter(io.Writer)
}

type logger struct {
	*log.Logger
}

// NewLogger returns a new Logger instance backed by Logrus.
func NewLogger(level uint32) Logger {
	l := log.New()
	l.SetLevel(log.Level(level))
	logFormatter := &log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
	l.Formatter = logFormatter
	return &logger{l}
}

func (l *logger) Writer() io.Writer {
	return l.Out
}

func (l *logger) SetWriter(writer io.Writer) {
	l.Out = writer
}

// zkLogger implements the ZooKeeper client logger interface by writing log
// messages to a driftlog logger.
type zkLogger struct {
	logger Logger
}

// NewZKLogger creates a ZooKeeper client logger that writes log messages to
// the given Logger.
func NewZKLogger(logger Logger, enabled bool) zk.Logger {
	if enabled {
		return &zkLogger{logger}
	}
	return &noopZKLogger{}
}

// Printf logs a client statement.
func (z *zkLogger) Printf(format string, v ...interface{}) {
	z.logger.Debugf("zk: "+format, v...)
}

// noopZKLogger implements the ZooKeeper client logger interface by performing
// a no-op for each log statement.
type noopZKLogger struct{}

// Printf is a no-op.
func (z *noopZKLogger) Printf(format string, v ...interface{}) {
	// No-op
}
