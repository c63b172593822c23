/*
 * Copyright 2011-2013 Nan Deng
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package binary_api

// This file contains a connection manager, which creates new TLS connections
// to the gateway. The error responses the gateway writes back are parsed by
// a goroutine per connection and added to a channel.

import (
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/uniqush/apnsgate/push"
	"github.com/uniqush/apnsgate/srv/apns/common"
)

// ConnConfig carries everything needed to dial one gateway endpoint.
type ConnConfig struct {
	Addr       string
	CertFile   string
	KeyFile    string
	SkipVerify bool
}

// ConnManager abstracts creating sockets to the gateway, so that tests can
// substitute in-memory connections.
type ConnManager interface {
	// NewConn returns a connection and a channel with a one-element buffer
	// which receives a value when the reader side detects that the
	// connection closed.
	NewConn() (net.Conn, <-chan bool, error)
}

// loggingConnManager decorates a ConnManager and reports opened connections.
type loggingConnManager struct {
	manager ConnManager
	errChan chan<- push.Error
}

var _ ConnManager = &loggingConnManager{}

func (m *loggingConnManager) NewConn() (conn net.Conn, closed <-chan bool, err error) {
	conn, closed, err = m.manager.NewConn()
	if conn != nil {
		m.errChan <- push.NewInfof("Connection to the gateway opened: %v to %v", conn.LocalAddr(), conn.RemoteAddr())
	}
	return
}

func newLoggingConnManager(manager ConnManager, errChan chan<- push.Error) *loggingConnManager {
	return &loggingConnManager{
		manager: manager,
		errChan: errChan,
	}
}

type gatewayConnManager struct {
	conf       *tls.Config
	err        error
	addr       string
	resultChan chan<- *common.APNSResult
}

var _ ConnManager = &gatewayConnManager{}

// newGatewayConnManager loads the credential material eagerly so that a bad
// certificate surfaces on the first dial rather than panicking later.
func newGatewayConnManager(c ConnConfig, resultChan chan<- *common.APNSResult) ConnManager {
	manager := new(gatewayConnManager)
	var cert tls.Certificate
	cert, manager.err = tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if manager.err != nil {
		return manager
	}
	manager.conf = &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: c.SkipVerify,
	}
	manager.addr = c.Addr
	manager.resultChan = resultChan
	return manager
}

// NewConn dials the gateway and starts a goroutine decoding its error
// responses into the result channel.
func (m *gatewayConnManager) NewConn() (net.Conn, <-chan bool, error) {
	if m.err != nil {
		return nil, nil, fmt.Errorf("error initializing gateway conn manager: %v", m.err)
	}

	tlsconn, err := tls.Dial("tcp", m.addr, m.conf)
	if err != nil {
		if err.Error() == "EOF" {
			err = fmt.Errorf("certificate is probably invalid/expired: %v", err)
		}
		return nil, nil, err
	}
	closed := make(chan bool, 1)
	go resultCollector(m.resultChan, tlsconn, closed)
	return tlsconn, closed, nil
}

// resultCollector decodes the fixed 6-byte error responses the gateway
// writes for rejected notifications: command(1) | status(1) | id(4,BE).
// One resultCollector goroutine runs for each connection created by NewConn.
// Visible for testing.
func resultCollector(resChan chan<- *common.APNSResult, c net.Conn, closed chan<- bool) {
	defer func() {
		// Tell the writer side so it can reopen the connection.
		closed <- true
		c.Close()
	}()
	var buf [errorResponseLength]byte
	for {
		_, err := io.ReadFull(c, buf[:])
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			res := new(common.APNSResult)
			res.Err = push.NewInfof("Connection closed by the gateway: %v", err)
			resChan <- res
			return
		}

		res := new(common.APNSResult)
		res.Status = buf[1]
		res.MsgID = binary.BigEndian.Uint32(buf[2:])
		resChan <- res

		// Status 10 means the gateway is shutting this connection down.
		if res.Status == common.Status10Shutdown {
			return
		}
	}
}
