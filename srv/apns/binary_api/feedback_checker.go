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

// This file implements the client of the feedback service: a second,
// independent connection which is reopened on a long fixed interval and
// streams expired-token records until the remote side closes it. Unlike
// gateway connections there is no reader goroutine; the checker itself
// consumes the stream.

import (
	"crypto/tls"
	"encoding/base64"
	"encoding/binary"
	"io"
	"net"
	"time"

	cache "github.com/uniqush/cache2"

	"github.com/uniqush/apnsgate/push"
)

// DefaultFeedbackInterval is how long the checker sleeps between feedback
// pulls. Feedback is low frequency by design, so this is a fixed interval,
// not a backoff schedule.
const DefaultFeedbackInterval = 12 * time.Hour

// FeedbackDialFunc opens one connection to the feedback service.
type FeedbackDialFunc func() (net.Conn, error)

// NewFeedbackDialer returns a FeedbackDialFunc for the given endpoint.
func NewFeedbackDialer(c ConnConfig) FeedbackDialFunc {
	return func() (net.Conn, error) {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, err
		}
		conf := &tls.Config{
			Certificates:       []tls.Certificate{cert},
			InsecureSkipVerify: c.SkipVerify,
		}
		tlsconn, err := tls.Dial("tcp", c.Addr, conf)
		if err != nil {
			return nil, err
		}
		if err := tlsconn.Handshake(); err != nil {
			tlsconn.Close()
			return nil, err
		}
		return tlsconn, nil
	}
}

// FeedbackChecker periodically connects to the feedback service and hands
// each batch of expired-token records to the caller's callback.
type FeedbackChecker struct {
	dial       FeedbackDialFunc
	interval   time.Duration
	tokenCache *cache.SimpleCache
	callback   push.FeedbackFunc
	errChan    chan<- push.Error
	stopChan   chan struct{}
	done       chan struct{}
}

// NewFeedbackChecker creates a checker and starts its polling goroutine,
// which pulls once immediately and then once per interval. tokenCache maps
// base64 device tokens to the unix time of their last push; it may be nil,
// in which case no staleness filtering happens.
func NewFeedbackChecker(dial FeedbackDialFunc, interval time.Duration, tokenCache *cache.SimpleCache, callback push.FeedbackFunc, errChan chan<- push.Error) *FeedbackChecker {
	if interval <= 0 {
		interval = DefaultFeedbackInterval
	}
	fc := &FeedbackChecker{
		dial:       dial,
		interval:   interval,
		tokenCache: tokenCache,
		callback:   callback,
		errChan:    errChan,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	go fc.loop()
	return fc
}

// Finalize stops the polling goroutine and waits for it to exit.
func (fc *FeedbackChecker) Finalize() {
	close(fc.stopChan)
	<-fc.done
}

func (fc *FeedbackChecker) loop() {
	defer close(fc.done)
	// First pull at startup: a fresh process must not wait a full interval
	// before learning about expired tokens.
	fc.checkOnce()
	for {
		select {
		case <-time.After(fc.interval):
			fc.checkOnce()
		case <-fc.stopChan:
			return
		}
	}
}

// checkOnce pulls and processes one feedback batch. Connection failures are
// reported and skipped; the next cycle retries.
func (fc *FeedbackChecker) checkOnce() {
	conn, err := fc.dial()
	if err != nil {
		fc.errChan <- push.NewConnectionError(err)
		return
	}
	defer conn.Close()
	fc.errChan <- push.NewInfo("Connected to the feedback service")

	records := fc.dropStale(fc.receiveFeedback(conn))
	fc.errChan <- push.NewInfof("Finished processing the feedback batch: %v records", len(records))
	if fc.callback != nil {
		fc.callback(records)
	}
}

// receiveFeedback parses repeating timestamp(4,BE) | tokenLen(2,BE) | token
// records until the remote side closes the stream. End-of-stream is the
// normal end of a batch; a truncated trailing record is reported and the
// complete leading records are kept.
func (fc *FeedbackChecker) receiveFeedback(r io.Reader) []push.FeedbackRecord {
	var records []push.FeedbackRecord
	for {
		var timestamp uint32
		var tokenLen uint16

		if err := binary.Read(r, binary.BigEndian, &timestamp); err != nil {
			if err != io.EOF {
				fc.errChan <- push.NewErrorf("Could not parse data received from the feedback service: %v", err)
			}
			return records
		}
		if err := binary.Read(r, binary.BigEndian, &tokenLen); err != nil {
			fc.errChan <- push.NewErrorf("Could not parse data received from the feedback service: %v", err)
			return records
		}
		token := make([]byte, int(tokenLen))
		if _, err := io.ReadFull(r, token); err != nil {
			fc.errChan <- push.NewErrorf("Could not parse data received from the feedback service: %v", err)
			return records
		}

		records = append(records, push.FeedbackRecord{
			Timestamp: timestamp,
			DevToken:  base64.StdEncoding.EncodeToString(token),
		})
	}
}

// dropStale removes records for tokens that were pushed to after the
// feedback timestamp: the device re-registered, so the feedback entry is
// out of date. Filtered tokens are removed from the cache so the next
// feedback for them is taken at face value.
func (fc *FeedbackChecker) dropStale(records []push.FeedbackRecord) []push.FeedbackRecord {
	if fc.tokenCache == nil {
		return records
	}
	kept := records[:0]
	for _, rec := range records {
		if v := fc.tokenCache.Delete(rec.DevToken); v != nil {
			if lastPush, ok := v.(int64); ok && lastPush > int64(rec.Timestamp) {
				fc.errChan <- push.NewInfof("Ignoring stale feedback for device %v", rec.DevToken)
				continue
			}
		}
		kept = append(kept, rec)
	}
	return kept
}
