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

// Package apns composes the binary protocol machinery into the two
// caller-facing services: the push gateway channel and the feedback poller.
package apns

import (
	"fmt"
	"strings"
	"time"

	cache "github.com/uniqush/cache2"

	"github.com/uniqush/apnsgate/push"
	"github.com/uniqush/apnsgate/srv/apns/binary_api"
	"github.com/uniqush/apnsgate/srv/apns/common"
)

// ServiceConfig configures one APNS push channel. All fields are fixed at
// construction; there is no runtime reconfiguration.
type ServiceConfig struct {
	CertFile string
	KeyFile  string

	// Sandbox selects the sandbox endpoints. Addr, when set, overrides the
	// gateway address entirely (used against mock gateways).
	Sandbox    bool
	Addr       string
	SkipVerify bool

	BacklogSize    int
	HistorySize    int
	WatchdogPeriod time.Duration
	ReconnectAfter time.Duration

	// OnFailure receives one call per error response from the gateway. A
	// status of push.StatusUnsubscribe means the token is permanently
	// invalid and the caller should stop sending to it.
	OnFailure push.FailureFunc
}

func (conf *ServiceConfig) gatewayAddr() string {
	if conf.Addr != "" {
		return conf.Addr
	}
	if conf.Sandbox {
		return common.SandboxGateway
	}
	return common.ProductionGateway
}

// Service is the APNS push channel: it accepts sends for base64 device
// tokens and keeps the underlying gateway connection alive.
type Service struct {
	client     *binary_api.GatewayClient
	tokenCache *cache.SimpleCache
}

var _ push.Channel = &Service{}

// NewService builds the channel and starts its connection worker. Errors
// and progress reports flow to errChan, which the caller must drain.
func NewService(conf ServiceConfig, errChan chan<- push.Error) *Service {
	tokenCache := cache.NewSimple(1024)
	client := binary_api.NewGatewayClient(binary_api.Config{
		Conn: binary_api.ConnConfig{
			Addr:       conf.gatewayAddr(),
			CertFile:   conf.CertFile,
			KeyFile:    conf.KeyFile,
			SkipVerify: conf.SkipVerify,
		},
		BacklogSize:    conf.BacklogSize,
		HistorySize:    conf.HistorySize,
		WatchdogPeriod: conf.WatchdogPeriod,
		ReconnectAfter: conf.ReconnectAfter,
		OnFailure:      conf.OnFailure,
	}, errChan)
	return &Service{
		client:     client,
		tokenCache: tokenCache,
	}
}

// Send delivers the payload to each of the given base64 device tokens.
func (s *Service) Send(devTokens []string, payload []byte) {
	now := time.Now().Unix()
	for _, devToken := range devTokens {
		s.tokenCache.Set(devToken, now)
		s.client.Send(devToken, payload)
	}
}

// Finalize shuts the channel down and waits for its worker to exit.
func (s *Service) Finalize() {
	s.client.Finalize()
}

// TokenCache exposes the last-push-time cache so the feedback service can
// filter records that predate a more recent push.
func (s *Service) TokenCache() *cache.SimpleCache {
	return s.tokenCache
}

// FeedbackServiceConfig configures the feedback poller.
type FeedbackServiceConfig struct {
	CertFile string
	KeyFile  string

	Sandbox    bool
	Addr       string // optional override, otherwise derived
	SkipVerify bool

	// Interval between pulls; the default is 12 hours.
	Interval time.Duration

	// OnFeedback receives each batch of expired-token records.
	OnFeedback push.FeedbackFunc
}

// FeedbackService periodically drains the feedback endpoint and reports the
// expired tokens to the caller.
type FeedbackService struct {
	checker *binary_api.FeedbackChecker
}

// NewFeedbackService starts the feedback poller. tokenCache is usually the
// companion Service's TokenCache; nil disables staleness filtering.
func NewFeedbackService(conf FeedbackServiceConfig, tokenCache *cache.SimpleCache, errChan chan<- push.Error) *FeedbackService {
	addr := conf.Addr
	if addr == "" {
		if conf.Sandbox {
			addr = common.SandboxFeedback
		} else {
			addr = common.ProductionFeedback
		}
	}
	dial := binary_api.NewFeedbackDialer(binary_api.ConnConfig{
		Addr:       addr,
		CertFile:   conf.CertFile,
		KeyFile:    conf.KeyFile,
		SkipVerify: conf.SkipVerify,
	})
	return &FeedbackService{
		checker: binary_api.NewFeedbackChecker(dial, conf.Interval, tokenCache, conf.OnFeedback, errChan),
	}
}

// Finalize stops the poller.
func (s *FeedbackService) Finalize() {
	s.checker.Finalize()
}

// FeedbackAddrForGateway derives the feedback endpoint matching a custom
// gateway address: the well known gateways map to their feedback hosts, and
// anything else keeps its host with the feedback port.
func FeedbackAddrForGateway(gatewayAddr string) string {
	switch gatewayAddr {
	case common.ProductionGateway:
		return common.ProductionFeedback
	case common.SandboxGateway:
		return common.SandboxFeedback
	}
	host := strings.Split(gatewayAddr, ":")[0]
	return fmt.Sprintf("%v:2196", host)
}
