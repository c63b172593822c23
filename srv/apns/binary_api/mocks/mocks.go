// Package mocks implements an in-memory APNS gateway endpoint, for unit
// tests. Instead of a TLS socket, connections are the two ends of a
// net.Pipe; the mock decodes the frames it receives and can write back
// 6-byte error responses like the real gateway.
package mocks

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"sync"
)

// APNSNotification is one decoded notification frame, as received by the
// mock gateway.
type APNSNotification struct {
	Command  uint8
	ID       uint32
	Expiry   uint32
	DevToken []byte
	Payload  []byte
}

func (n *APNSNotification) String() string {
	return fmt.Sprintf("command=%v; id=%v; expiry=%v; token=%v; payload=%v",
		n.Command, n.ID, n.Expiry, hex.EncodeToString(n.DevToken), string(n.Payload))
}

// ReadNotification decodes one notification frame from r:
// command(1) | id(4,BE) | expiry(4,BE) | tokenLen(2,BE) | token |
// payloadLen(2,BE) | payload.
func ReadNotification(r io.Reader) (*APNSNotification, error) {
	n := new(APNSNotification)
	if err := binary.Read(r, binary.BigEndian, &n.Command); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &n.ID); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &n.Expiry); err != nil {
		return nil, err
	}
	var tokenLen uint16
	if err := binary.Read(r, binary.BigEndian, &tokenLen); err != nil {
		return nil, err
	}
	n.DevToken = make([]byte, int(tokenLen))
	if _, err := io.ReadFull(r, n.DevToken); err != nil {
		return nil, err
	}
	var payloadLen uint16
	if err := binary.Read(r, binary.BigEndian, &payloadLen); err != nil {
		return nil, err
	}
	n.Payload = make([]byte, int(payloadLen))
	if _, err := io.ReadFull(r, n.Payload); err != nil {
		return nil, err
	}
	return n, nil
}

// Gateway is the server side of one mocked connection. It decodes incoming
// frames and exposes them both as an ordered slice and on a channel for
// tests that need to wait for delivery.
type Gateway struct {
	conn net.Conn

	// NotifChan receives every decoded notification in arrival order.
	NotifChan chan *APNSNotification

	mu     sync.Mutex
	notifs []*APNSNotification
}

// NewGatewayConn creates a connected pair: the client end to hand to the
// code under test, and the Gateway wrapping the server end. The gateway
// starts decoding immediately.
func NewGatewayConn() (net.Conn, *Gateway) {
	client, server := net.Pipe()
	gw := &Gateway{
		conn:      server,
		NotifChan: make(chan *APNSNotification, 100),
	}
	go gw.serve()
	return client, gw
}

func (gw *Gateway) serve() {
	for {
		n, err := ReadNotification(gw.conn)
		if err != nil {
			return
		}
		gw.mu.Lock()
		gw.notifs = append(gw.notifs, n)
		gw.mu.Unlock()
		gw.NotifChan <- n
	}
}

// Notifications returns the decoded notifications received so far.
func (gw *Gateway) Notifications() []*APNSNotification {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	result := make([]*APNSNotification, len(gw.notifs))
	copy(result, gw.notifs)
	return result
}

// RespondError writes a 6-byte error response, the way the real gateway
// reports a rejected notification.
func (gw *Gateway) RespondError(status uint8, id uint32) error {
	var buf [6]byte
	buf[0] = 8 // command byte of an error response
	buf[1] = status
	binary.BigEndian.PutUint32(buf[2:], id)
	_, err := gw.conn.Write(buf[:])
	return err
}

// Close severs the connection, as the real gateway does after reporting an
// error or when shedding idle clients.
func (gw *Gateway) Close() {
	gw.conn.Close()
}
