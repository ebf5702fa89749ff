package logging

// Interface is the logging surface the sync components depend on.
// *Logger, *Printer and the value returned by Multi satisfy it.
type Interface interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

type multi []Interface

// Multi fans every entry out to all of the given loggers. Nil entries are skipped.
func Multi(loggers ...Interface) Interface {
	m := make(multi, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			m = append(m, l)
		}
	}
	return m
}

func (m multi) Debugf(format string, v ...interface{}) {
	for _, l := range m {
		l.Debugf(format, v...)
	}
}

func (m multi) Infof(format string, v ...interface{}) {
	for _, l := range m {
		l.Infof(format, v...)
	}
}

func (m multi) Warnf(format string, v ...interface{}) {
	for _, l := range m {
		l.Warnf(format, v...)
	}
}

func (m multi) Errorf(format string, v ...interface{}) {
	for _, l := range m {
		l.Errorf(format, v...)
	}
}

type discard struct{}

// Discard returns a logger that drops everything.
func Discard() Interface { return discard{} }

func (discard) Debugf(string, ...interface{}) {}
func (discard) Infof(string, ...interface{})  {}
func (discard) Warnf(string, ...interface{})  {}
func (discard) Errorf(string, ...interface{}) {}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l Interface) Interface {
	if l == nil {
		return discard{}
	}
	return l
}
