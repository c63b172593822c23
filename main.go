/*
 * Copyright 2011 Nan Deng
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/uniqush/log"

	"github.com/uniqush/apnsgate/db"
	"github.com/uniqush/apnsgate/push"
	"github.com/uniqush/apnsgate/srv/apns"
)

var apnsgateConfFlag = flag.String("config", defaultConfigFilePath, "Config file path")
var apnsgateShowVersionFlag = flag.Bool("version", false, "Version info")

var apnsgateVersion = "apnsgate 1.0.0"

func main() {
	flag.Parse()
	if *apnsgateShowVersionFlag {
		fmt.Printf("%v\n", apnsgateVersion)
		return
	}

	err := Run(*apnsgateConfFlag, apnsgateVersion)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot start: %v\n", err)
		os.Exit(1)
	}
}

// drainErrors logs everything the gateway machinery reports on its error
// channel. InfoReports are progress, GatewayRejections are expected
// operational noise, the rest is trouble.
func drainErrors(logger log.Logger, errChan <-chan push.Error) {
	for report := range errChan {
		switch report.(type) {
		case *push.InfoReport:
			logger.Infof("%v", report)
		case *push.GatewayRejection:
			logger.Warnf("%v", report)
		default:
			logger.Errorf("%v", report)
		}
	}
}

// Run starts the gateway channel, the feedback poller and the web frontend
// from the given config file, and blocks until SIGINT/SIGTERM.
func Run(configPath, version string) error {
	c, err := OpenConfig(configPath)
	if err != nil {
		return err
	}
	loggers, err := LoadLoggers(c)
	if err != nil {
		return err
	}
	serviceName := LoadServiceName(c)

	gatewayConf, err := LoadGatewayConfig(c)
	if err != nil {
		return err
	}

	var tokenDB *db.InvalidTokenDB
	if tc, enabled := LoadTokenDBConfig(c); enabled {
		tokenDB = db.NewInvalidTokenDB(tc)
		defer tokenDB.Close()
	}

	mainLogger := loggers[LoggerMain]
	markInvalid := func(devToken string) {
		mainLogger.Infof("Token %v will be deleted", devToken)
		if tokenDB == nil {
			return
		}
		if err := tokenDB.MarkInvalid(serviceName, devToken); err != nil {
			mainLogger.Errorf("Failed to record invalid token %v: %v", devToken, err)
		}
	}

	gatewayConf.OnFailure = func(status uint8, devToken string) {
		if status == push.StatusUnsubscribe && devToken != "" {
			markInvalid(devToken)
		} else {
			mainLogger.Errorf("Error code %v received when sending message to token %v", status, devToken)
		}
	}

	gatewayErrChan := make(chan push.Error, 100)
	go drainErrors(loggers[LoggerGateway], gatewayErrChan)
	service := apns.NewService(gatewayConf, gatewayErrChan)
	defer service.Finalize()

	feedbackConf := LoadFeedbackConfig(c, gatewayConf)
	feedbackConf.OnFeedback = func(records []push.FeedbackRecord) {
		for _, rec := range records {
			markInvalid(rec.DevToken)
		}
	}
	feedbackErrChan := make(chan push.Error, 100)
	go drainErrors(loggers[LoggerFeedback], feedbackErrChan)
	feedback := apns.NewFeedbackService(feedbackConf, service.TokenCache(), feedbackErrChan)
	defer feedback.Finalize()

	if webAddr := LoadWebAddr(c); webAddr != "" {
		frontend := NewWebFrontend(webAddr, service, version, loggers[LoggerWeb])
		go func() {
			if err := frontend.Run(); err != nil {
				loggers[LoggerWeb].Errorf("Web frontend stopped: %v", err)
			}
		}()
	}

	mainLogger.Infof("%v started", version)

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)
	<-stopChan
	mainLogger.Infof("Shutting down")
	return nil
}
