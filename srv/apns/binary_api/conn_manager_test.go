package binary_api

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/uniqush/apnsgate/push"
	"github.com/uniqush/apnsgate/srv/apns/common"
	"github.com/uniqush/apnsgate/test_util"
)

func waitResult(t *testing.T, resChan chan *common.APNSResult) *common.APNSResult {
	t.Helper()
	select {
	case res := <-resChan:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a result")
		return nil
	}
}

func TestResultCollectorDecodesErrorResponse(t *testing.T) {
	client, server := net.Pipe()
	resChan := make(chan *common.APNSResult, 10)
	closed := make(chan bool, 1)
	go resultCollector(resChan, client, closed)

	_, err := server.Write([]byte{8, common.Status5InvalidTokenSize, 0, 0, 0x03, 0xe8})
	test_util.ExpectNoError(t, err, "response write")

	res := waitResult(t, resChan)
	if res.Err != nil {
		t.Fatalf("unexpected decode error: %v", res.Err)
	}
	test_util.ExpectEquals(t, uint8(common.Status5InvalidTokenSize), res.Status, "wrong status")
	test_util.ExpectEquals(t, uint32(1000), res.MsgID, "wrong message id")

	// Closing the stream produces one informational result and the closed
	// signal for the writer side.
	server.Close()
	res = waitResult(t, resChan)
	if res.Err == nil {
		t.Error("expected a connection-closed report")
	}
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the closed signal")
	}
}

func TestResultCollectorStopsOnShutdownStatus(t *testing.T) {
	client, server := net.Pipe()
	resChan := make(chan *common.APNSResult, 10)
	closed := make(chan bool, 1)
	go resultCollector(resChan, client, closed)

	_, err := server.Write([]byte{8, common.Status10Shutdown, 0, 0, 0x04, 0x00})
	test_util.ExpectNoError(t, err, "response write")

	res := waitResult(t, resChan)
	test_util.ExpectEquals(t, uint8(common.Status10Shutdown), res.Status, "wrong status")
	test_util.ExpectEquals(t, uint32(1024), res.MsgID, "wrong message id")

	// The collector tears the connection down itself, without the server
	// having to close anything.
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("collector should stop after a shutdown status")
	}
}

type stubConnManager struct{}

func (m *stubConnManager) NewConn() (net.Conn, <-chan bool, error) {
	client, server := net.Pipe()
	go func() {
		// Keep the server end alive until the test closes the client.
		buf := make([]byte, 1)
		server.Read(buf)
		server.Close()
	}()
	closed := make(chan bool, 1)
	return client, closed, nil
}

func TestLoggingConnManagerReportsOpenedConnections(t *testing.T) {
	errChan := make(chan push.Error, 10)
	m := newLoggingConnManager(&stubConnManager{}, errChan)
	conn, _, err := m.NewConn()
	test_util.ExpectNoError(t, err, "NewConn")
	defer conn.Close()

	select {
	case e := <-errChan:
		test_util.ExpectTrue(t, strings.Contains(e.Error(), "Connection to the gateway opened"),
			"unexpected report: "+e.Error())
	case <-time.After(time.Second):
		t.Fatal("expected a connection report")
	}
}

func TestGatewayConnManagerReportsBadCredentials(t *testing.T) {
	m := newGatewayConnManager(ConnConfig{
		Addr:     "localhost:2195",
		CertFile: "no-such.cert",
		KeyFile:  "no-such.key",
	}, nil)
	conn, _, err := m.NewConn()
	if err == nil {
		conn.Close()
		t.Fatal("expected an error for missing credential files")
	}
	// Subsequent dials fail the same way instead of panicking.
	_, _, err2 := m.NewConn()
	if err2 == nil {
		t.Fatal("expected the stored credential error to persist")
	}
}
