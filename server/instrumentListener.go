package server

import (
	"net"
	"sync"

	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"

	"github.com/pharos-hub/pharos/xmetrics"
)

// InstrumentListener returns a net.Listener which tracks the number of
// current connections through the supplied adder.  Any errors during Accept
// or Close are logged via the supplied logger.
func InstrumentListener(logger *zap.Logger, counter xmetrics.Adder, l net.Listener) net.Listener {
	if logger == nil {
		logger = sallust.Default()
	}

	return &instrumentedListener{Listener: l, logger: logger, counter: counter}
}

type instrumentedListener struct {
	net.Listener
	logger  *zap.Logger
	counter xmetrics.Adder
}

func (l *instrumentedListener) closeConn() {
	l.counter.Add(-1.0)
}

func (l *instrumentedListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		l.logger.Error("unable to accept connection", zap.Error(err))
		return nil, err
	}

	l.counter.Add(1.0)
	return &instrumentedConn{Conn: c, closeConn: l.closeConn}, nil
}

func (l *instrumentedListener) Close() error {
	err := l.Listener.Close()
	if err != nil {
		l.logger.Error("error while closing listener", zap.Error(err))
	}

	return err
}

type instrumentedConn struct {
	net.Conn
	closeOnce sync.Once
	closeConn func()
}

func (ic *instrumentedConn) Close() error {
	err := ic.Conn.Close()
	ic.closeOnce.Do(ic.closeConn)
	return err
}
