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

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/uniqush/apnsgate/push"
	"github.com/uniqush/apnsgate/srv/apns/common"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultBacklogSize = 100
	DefaultHistorySize = 1000

	defaultWatchdogPeriod = 900 * time.Second
	defaultReconnectAfter = 1800 * time.Second
	defaultBackoffMin     = time.Second
	defaultBackoffMax     = 10 * time.Minute

	// A connection that dies this quickly after being established points at
	// a certificate or endpoint problem rather than network weather.
	immediateDisconnectWindow = time.Second
)

// Config configures one GatewayClient. Everything is fixed at construction.
type Config struct {
	Conn ConnConfig

	// BacklogSize bounds the queue of messages buffered while disconnected.
	BacklogSize int
	// HistorySize bounds the record of sent frames kept for resending.
	HistorySize int
	// MaxFrameSize bounds the total encoded frame length.
	MaxFrameSize int

	// WatchdogPeriod is how often the idle check runs; ReconnectAfter is
	// how stale the last send must be before the check forces a reconnect.
	WatchdogPeriod time.Duration
	ReconnectAfter time.Duration

	// BackoffMin and BackoffMax delimit the exponential reconnect backoff.
	BackoffMin time.Duration
	BackoffMax time.Duration

	// MinMsgID and MaxMsgID delimit the message id range.
	MinMsgID uint32
	MaxMsgID uint32

	// OnFailure is invoked once per error response the gateway reports.
	OnFailure push.FailureFunc
}

func (conf *Config) fillDefaults() {
	if conf.BacklogSize <= 0 {
		conf.BacklogSize = DefaultBacklogSize
	}
	if conf.HistorySize <= 0 {
		conf.HistorySize = DefaultHistorySize
	}
	if conf.MaxFrameSize <= 0 {
		conf.MaxFrameSize = DefaultMaxFrameSize
	}
	if conf.WatchdogPeriod <= 0 {
		conf.WatchdogPeriod = defaultWatchdogPeriod
	}
	if conf.ReconnectAfter <= 0 {
		conf.ReconnectAfter = defaultReconnectAfter
	}
	if conf.BackoffMin <= 0 {
		conf.BackoffMin = defaultBackoffMin
	}
	if conf.BackoffMax <= 0 {
		conf.BackoffMax = defaultBackoffMax
	}
	if conf.MinMsgID == 0 {
		conf.MinMsgID = MinMessageID
	}
	if conf.MaxMsgID == 0 {
		conf.MaxMsgID = MaxMessageID
	}
}

// GatewayClient owns one logical channel to the gateway: it dials, flushes
// the backlog on (re)connect, frames and transmits sends, decodes error
// responses, retransmits messages sent after a failing one, and reconnects
// with exponential backoff whenever the connection is lost.
//
// A single worker goroutine owns the id sequence, the sent history and the
// connection; everything reaches it over channels. The backlog is the one
// structure producers touch directly, and it locks internally.
type GatewayClient struct {
	conf    Config
	manager ConnManager
	errChan chan<- push.Error

	resultChan chan *common.APNSResult
	sendChan   chan queuedMessage
	stopChan   chan struct{}
	wg         sync.WaitGroup

	finishLock sync.Mutex
	finished   bool

	seq     *idSequence
	history *sentHistory
	backlog *backlogQueue

	// Connection-cycle state below is touched only by the worker goroutine.
	conn         net.Conn
	closedChan   <-chan bool
	connectedAt  time.Time
	lastSend     time.Time
	alerted      bool
	pendingError uint32 // failing message id, 0 when none
	backoff      time.Duration

	now func() time.Time
}

// NewGatewayClient creates a client and starts its worker goroutine. The
// worker dials immediately and keeps the connection alive until Finalize.
func NewGatewayClient(conf Config, errChan chan<- push.Error) *GatewayClient {
	c := newGatewayClient(conf, errChan)
	c.manager = newLoggingConnManager(newGatewayConnManager(conf.Conn, c.resultChan), errChan)
	c.start()
	return c
}

// newGatewayClient builds an unstarted client. Tests substitute the conn
// manager before calling start.
func newGatewayClient(conf Config, errChan chan<- push.Error) *GatewayClient {
	conf.fillDefaults()
	return &GatewayClient{
		conf:       conf,
		errChan:    errChan,
		resultChan: make(chan *common.APNSResult, 100),
		sendChan:   make(chan queuedMessage),
		stopChan:   make(chan struct{}),
		seq:        newIDSequence(conf.MinMsgID, conf.MaxMsgID),
		history:    newSentHistory(conf.HistorySize),
		backlog:    newBacklogQueue(conf.BacklogSize),
		backoff:    conf.BackoffMin,
		now:        time.Now,
	}
}

func (c *GatewayClient) start() {
	c.wg.Add(1)
	go c.run()
}

// Send queues one notification for delivery. Delivery is asynchronous;
// rejections surface through the configured OnFailure callback.
func (c *GatewayClient) Send(devToken string, payload []byte) {
	select {
	case c.sendChan <- queuedMessage{devToken: devToken, payload: payload}:
	case <-c.stopChan:
		c.errChan <- push.NewInfof("Gateway client is shutting down. Dropping message for device %v", devToken)
	}
}

// Finalize stops the worker, cancelling its timers and closing the
// connection. It waits until the worker goroutine has exited.
func (c *GatewayClient) Finalize() {
	c.finishLock.Lock()
	wasFinished := c.finished
	c.finished = true
	c.finishLock.Unlock()
	if !wasFinished {
		close(c.stopChan)
	}
	c.wg.Wait()
}

func (c *GatewayClient) run() {
	defer c.wg.Done()
	watchdog := time.NewTicker(c.conf.WatchdogPeriod)
	defer watchdog.Stop()
	for {
		if c.conn == nil {
			if !c.connect() {
				return
			}
		}
		select {
		case m := <-c.sendChan:
			c.sendMessage(m)
		case res := <-c.resultChan:
			c.handleResult(res)
		case <-c.closedChan:
			c.connectionLost()
		case <-watchdog.C:
			c.checkTimeout()
		case <-c.stopChan:
			c.shutdown()
			return
		}
	}
}

// connect keeps dialing, with exponential backoff between failed attempts,
// until a connection is established or shutdown is requested. On success it
// first retransmits messages for a still-pending error response, then
// flushes the backlog in FIFO order.
func (c *GatewayClient) connect() bool {
	for {
		res, ok := c.dial()
		if !ok {
			return false
		}
		if res.err == nil {
			c.conn = res.conn
			c.closedChan = res.closed
			now := c.now()
			c.connectedAt = now
			c.lastSend = now
			c.backoff = c.conf.BackoffMin
			if c.pendingError != 0 {
				c.processFailedMessages()
			}
			if c.conn != nil {
				c.processBacklog()
			}
			return true
		}
		c.errChan <- push.NewConnectionError(res.err)
		if !c.waitBackoff() {
			return false
		}
	}
}

type dialResult struct {
	conn   net.Conn
	closed <-chan bool
	err    error
}

// dial runs one NewConn attempt in a helper goroutine so the worker keeps
// buffering sends into the backlog while the dial is in flight. It reports
// false when shutdown was requested; a dial still in flight then gets its
// connection closed in the background.
func (c *GatewayClient) dial() (dialResult, bool) {
	dialChan := make(chan dialResult, 1)
	go func() {
		conn, closed, err := c.manager.NewConn()
		dialChan <- dialResult{conn: conn, closed: closed, err: err}
	}()
	for {
		select {
		case res := <-dialChan:
			return res, true
		case m := <-c.sendChan:
			c.enqueue(m)
		case res := <-c.resultChan:
			c.handleResult(res)
		case <-c.stopChan:
			go func() {
				if res := <-dialChan; res.conn != nil {
					res.conn.Close()
				}
			}()
			return dialResult{}, false
		}
	}
}

// waitBackoff waits out the current backoff interval, buffering sends that
// arrive in the meantime. It reports false when shutdown was requested.
func (c *GatewayClient) waitBackoff() bool {
	timer := time.NewTimer(c.backoff)
	defer timer.Stop()
	c.backoff *= 2
	if c.backoff > c.conf.BackoffMax {
		c.backoff = c.conf.BackoffMax
	}
	for {
		select {
		case <-timer.C:
			return true
		case m := <-c.sendChan:
			c.enqueue(m)
		case res := <-c.resultChan:
			c.handleResult(res)
		case <-c.stopChan:
			return false
		}
	}
}

func (c *GatewayClient) enqueue(m queuedMessage) {
	if c.backlog.enqueue(m) {
		c.errChan <- push.NewInfof("Full queue - oldest message popped to make way for a newer message for device %v, as no gateway connection is available", m.devToken)
	} else {
		c.errChan <- push.NewInfof("Message for device %v stored in queue as no gateway connection is available", m.devToken)
	}
}

func (c *GatewayClient) sendMessage(m queuedMessage) {
	if c.conn == nil {
		c.enqueue(m)
		return
	}
	c.transmit(m)
}

// transmit frames one notification under the next message id, retains it in
// the sent history and writes it out. Framing failures discard the message:
// it enters neither the history nor the backlog. The return value reports
// whether the connection survived.
func (c *GatewayClient) transmit(m queuedMessage) bool {
	msgID := c.seq.current()
	frame, perr := buildFrame(msgID, m.devToken, m.payload, c.now(), c.conf.MaxFrameSize)
	if perr != nil {
		c.errChan <- perr
		return true
	}
	c.history.add(sentMessage{msgID: msgID, devToken: m.devToken, frame: frame})
	c.seq.advance()
	return c.writeFrame(frame)
}

func (c *GatewayClient) writeFrame(frame []byte) bool {
	if c.conn == nil {
		return false
	}
	if err := writen(c.conn, frame); err != nil {
		c.errChan <- push.NewConnectionError(err)
		c.connectionLost()
		return false
	}
	c.lastSend = c.now()
	return true
}

// processBacklog flushes buffered sends in FIFO order. If the connection
// dies mid-flush the remainder goes back into the backlog for the next
// cycle; the message in flight is considered lost.
func (c *GatewayClient) processBacklog() {
	drained := c.backlog.drainAll()
	if len(drained) == 0 {
		return
	}
	c.errChan <- push.NewInfof("Processing the backlog of %v gateway messages", len(drained))
	for i, m := range drained {
		if !c.transmit(m) {
			for _, rest := range drained[i+1:] {
				c.backlog.enqueue(rest)
			}
			return
		}
	}
}

// handleResult reacts to one decoded error response. A message id of 0 is
// the gateway's way of saying no specific message was identified, which
// suppresses both the failure callback and the resend.
func (c *GatewayClient) handleResult(res *common.APNSResult) {
	if res.Err != nil {
		c.errChan <- res.Err
		return
	}
	if res.MsgID == 0 {
		c.errChan <- push.NewInfo("Error response contained a message id of 0. Resend process not being invoked.")
		return
	}
	devToken := ""
	if m, ok := c.history.lookup(res.MsgID); ok {
		devToken = m.devToken
	}
	c.pendingError = res.MsgID
	c.errChan <- push.NewGatewayRejection(res.Status, res.MsgID, devToken)
	if c.conf.OnFailure != nil {
		c.conf.OnFailure(res.Status, devToken)
	}
	if c.conn != nil {
		c.processFailedMessages()
	}
}

// processFailedMessages retransmits every retained message that was sent
// after the failing one. The pending marker is cleared whatever branch is
// taken; an ambiguous resend is logged and skipped.
func (c *GatewayClient) processFailedMessages() {
	failedID := c.pendingError
	c.pendingError = 0
	resends, perr := resendSet(c.history, failedID, c.seq.current(), c.conf.MinMsgID, c.conf.MaxMsgID)
	if perr != nil {
		c.errChan <- perr
		return
	}
	c.errChan <- push.NewInfof("Resending %v messages that were sent after the failed message (id: %v)", len(resends), failedID)
	for _, m := range resends {
		if !c.writeFrame(m.frame) {
			return
		}
	}
}

// connectionLost records the loss, runs the immediate-disconnect alert
// bookkeeping and leaves the worker in the disconnected state so the run
// loop re-enters connect.
func (c *GatewayClient) connectionLost() {
	if c.conn == nil {
		return
	}
	lifetime := c.now().Sub(c.connectedAt)
	if lifetime <= immediateDisconnectWindow {
		if !c.alerted {
			c.errChan <- push.NewError("Detected immediate disconnect. Alert")
			c.alerted = true
		} else {
			c.errChan <- push.NewInfo("Immediate disconnect detected. Already alerted")
		}
	} else if c.alerted {
		c.errChan <- push.NewInfo("Gateway connectivity issue resolved")
		c.alerted = false
	}
	c.errChan <- push.NewInfo("Gateway connection lost")
	c.conn.Close()
	c.conn = nil
	c.closedChan = nil
}

// checkTimeout forces a reconnect when nothing has been sent for longer
// than the reconnect threshold, guarding against silently stale
// connections that the gateway never closes from its side.
func (c *GatewayClient) checkTimeout() {
	c.errChan <- push.NewInfo("Running gateway timeout check")
	if c.conn == nil {
		return
	}
	if c.now().Sub(c.lastSend) >= c.conf.ReconnectAfter {
		c.errChan <- push.NewInfo("Forcing a reconnection to the gateway")
		c.conn.Close()
		c.conn = nil
		c.closedChan = nil
	}
}

func (c *GatewayClient) shutdown() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.closedChan = nil
	}
}

// overrideConnManager substitutes the connection manager. Tests call this
// before start.
func (c *GatewayClient) overrideConnManager(manager ConnManager) {
	c.manager = manager
}

// writen keeps calling Write until the whole buffer is written or a real
// error is encountered. It gives up after 10 temporary errors to avoid a
// busy loop.
func writen(w io.Writer, buf []byte) error {
	remainingTemporaryErrors := 10
	n := len(buf)
	for n >= 0 {
		l, err := w.Write(buf)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Temporary() && !nerr.Timeout() {
				if remainingTemporaryErrors > 0 {
					remainingTemporaryErrors--
					continue
				}
			}
			return err
		}
		if l >= n {
			return nil
		}
		n -= l
		buf = buf[l:]
	}
	return nil
}
