/*Package comm provides the transport used to talk to virtual motor controllers.

A RemoteDevice wraps either a serial port or a TCP connection.  It is
concurrent safe, and performs one write-then-read exchange at a time:

	rd := comm.NewRemoteDevice("localhost:5000", false, nil, nil)
	resp, err := rd.OpenSendRecvClose([]byte("1 POS?"))

The connection is opened lazily and closed after it has been idle for
Timeout, so a device that reboots or drops the link is simply re-opened on the
next exchange.
*/
package comm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

const (
	// DefaultTimeout is used when a RemoteDevice is created without one
	DefaultTimeout = 3 * time.Second

	defaultTerminator = byte('\r')
)

var (
	// ErrNotConnected is generated when .Conn is nil and Send or Recv is called.
	ErrNotConnected = errors.New("conn is nil, not connected to remote")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")
)

// Terminators holds the transmit and receive termination bytes
type Terminators struct {
	Rx byte
	Tx byte
}

// Sender has a Send method that passes along a byte slice
type Sender interface {
	Send([]byte) error
}

// Recver has a Recv method that gets a byte slice
type Recver interface {
	Recv() ([]byte, error)
}

// SendRecver can send and recieve, and provides a method that sends then recieves
type SendRecver interface {
	Sender
	Recver

	SendRecv([]byte) ([]byte, error)
}

/*RemoteDevice has an address and implements SendRecver

if IsSerial is true, Addr is the name of the serial port (/dev/ttyS0, COM3)
and the serial configuration is used, otherwise Addr is a host:port pair.

The embedded mutex is held for the duration of OpenSendRecvClose, so
exchanges from multiple goroutines never interleave on the wire.
*/
type RemoteDevice struct {
	sync.Mutex

	Addr     string
	IsSerial bool
	Conn     io.ReadWriteCloser

	// Timeout bounds each exchange on a TCP link and how long the connection
	// is kept open while idle
	Timeout time.Duration

	term   Terminators
	serCfg *serial.Config
	rdr    *bufio.Reader
	timer  *time.Timer
}

// NewRemoteDevice creates a new RemoteDevice instance.  nil terminators use
// carriage returns in both directions.
func NewRemoteDevice(addr string, serial bool, term *Terminators, serCfg *serial.Config) RemoteDevice {
	if term == nil {
		term = &Terminators{Rx: defaultTerminator, Tx: defaultTerminator}
	}
	return RemoteDevice{
		Addr:     addr,
		IsSerial: serial,
		Timeout:  DefaultTimeout,
		term:     *term,
		serCfg:   serCfg}
}

// Open the connection, setting the Conn variable.  It is a no-op if the
// connection is already open.
func (rd *RemoteDevice) Open() error {
	if rd.Conn != nil {
		return nil
	}
	// refused connections are not retried, the remote is not listening and
	// hammering on it will not change that
	var refused error
	op := func() error {
		err := rd.open()
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "refused") {
				refused = err
				return nil
			}
			return err
		}
		return nil
	}

	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if refused != nil {
		return refused
	}
	if err != nil {
		return fmt.Errorf("connection timeout to %s: %w", rd.Addr, err)
	}
	return nil
}

func (rd *RemoteDevice) open() error {
	var (
		err  error
		conn io.ReadWriteCloser
	)
	if rd.IsSerial {
		conf := rd.serCfg
		if conf == nil {
			conf = MakeSerConf(rd.Addr, 9600, rd.Timeout)
		}
		conn, err = serial.OpenPort(conf)
	} else {
		conn, err = TCPSetup(rd.Addr, rd.Timeout)
	}
	if err != nil {
		return err
	}
	rd.Conn = conn
	rd.rdr = bufio.NewReader(conn)
	return nil
}

// Close the connection, nil-ing the Conn variable
func (rd *RemoteDevice) Close() error {
	if rd.Conn == nil {
		return nil
	}
	err := rd.Conn.Close()
	rd.Conn = nil
	rd.rdr = nil
	return err
}

// CloseEventually closes the connection once it has been idle for Timeout.
// Another exchange before then pushes the deadline back.
func (rd *RemoteDevice) CloseEventually() {
	if rd.timer != nil {
		rd.timer.Stop()
	}
	rd.timer = time.AfterFunc(rd.Timeout, func() {
		rd.Lock()
		defer rd.Unlock()
		rd.Close()
	})
}

// Send writes data to the remote after appending the Tx terminator
func (rd *RemoteDevice) Send(b []byte) error {
	if rd.Conn == nil {
		return ErrNotConnected
	}
	if c, ok := rd.Conn.(net.Conn); ok {
		c.SetDeadline(time.Now().Add(rd.Timeout))
	}
	buf := make([]byte, 0, len(b)+1)
	buf = append(buf, b...)
	buf = append(buf, rd.term.Tx)
	_, err := rd.Conn.Write(buf)
	return err
}

// Recv recieves data from the remote and strips the Rx terminator
func (rd *RemoteDevice) Recv() ([]byte, error) {
	if rd.Conn == nil {
		return nil, ErrNotConnected
	}
	buf, err := rd.rdr.ReadBytes(rd.term.Rx)
	if err != nil {
		if len(buf) != 0 && err == io.EOF {
			return buf, ErrTerminatorNotFound
		}
		return []byte{}, err
	}
	buf = bytes.TrimSuffix(buf, []byte{rd.term.Rx})
	// tolerate CRLF from devices that send both
	return bytes.TrimRight(buf, "\r\n"), nil
}

// SendRecv sends a buffer after appending the Tx terminator,
// then returns the response with the Rx terminator stripped
func (rd *RemoteDevice) SendRecv(b []byte) ([]byte, error) {
	err := rd.Send(b)
	if err != nil {
		return []byte{}, err
	}
	return rd.Recv()
}

// OpenSendRecvClose opens the connection if needed, performs one exchange,
// and schedules the connection to be closed once idle.  A failed exchange
// closes the connection immediately so the next one starts clean.
func (rd *RemoteDevice) OpenSendRecvClose(b []byte) ([]byte, error) {
	rd.Lock()
	defer rd.Unlock()
	err := rd.Open()
	if err != nil {
		return []byte{}, err
	}
	resp, err := rd.SendRecv(b)
	if err != nil {
		rd.Close()
		return resp, err
	}
	rd.CloseEventually()
	return resp, nil
}

// MakeSerConf makes a new serial.Config with 8N1 framing at the given baud rate
func MakeSerConf(addr string, baud int, timeout time.Duration) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        baud,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: timeout}
}

// TCPSetup opens a new TCP connection with a timeout on connect
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}
