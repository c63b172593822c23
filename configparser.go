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
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/uniqush/goconf/conf"
	"github.com/uniqush/log"

	"github.com/uniqush/apnsgate/db"
	"github.com/uniqush/apnsgate/srv/apns"
)

// Logger*
const (
	LoggerMain = iota
	LoggerGateway
	LoggerFeedback
	LoggerWeb
	NumberOfLoggers
)

const defaultConfigFilePath = "/etc/apnsgate/apnsgate.conf"

func extractLogLevel(loglevel string) (int, string) {
	warningMsg := ""
	var level int
	switch strings.ToLower(loglevel) {
	case "alert":
		level = log.LOGLEVEL_ALERT
	case "error":
		level = log.LOGLEVEL_ERROR
	case "warn", "warning":
		level = log.LOGLEVEL_WARN
	case "standard", "verbose", "info":
		level = log.LOGLEVEL_INFO
	case "debug":
		level = log.LOGLEVEL_DEBUG
	default:
		warningMsg = fmt.Sprintf("Unsupported loglevel %q. Supported values: alert, error, warn/warning, standard/verbose/info, and debug", loglevel)
		level = log.LOGLEVEL_INFO
	}
	return level, warningMsg
}

func loadLogger(writer io.Writer, c *conf.ConfigFile, field string, prefix string) (log.Logger, error) {
	var loglevel string
	var logswitch bool
	var err error

	logswitch, err = c.GetBool(field, "log")
	if err != nil {
		logswitch = true
	}

	if writer == nil {
		writer = os.Stderr
	}

	loglevel, err = c.GetString(field, "loglevel")
	if err != nil {
		loglevel = "standard"
	}
	var level int
	warningMsg := ""

	if logswitch {
		level, warningMsg = extractLogLevel(loglevel)
	} else {
		level = log.LOGLEVEL_SILENT
	}

	logger := log.NewLogger(writer, prefix, level)
	if warningMsg != "" {
		logger.Warn(warningMsg)
	}
	return logger, nil
}

// OpenConfig opens the apnsgate.conf file at filename, or returns an error
func OpenConfig(filename string) (c *conf.ConfigFile, err error) {
	if filename == "" {
		filename = defaultConfigFilePath
	}
	c, err = conf.ReadConfigFile(filename)
	if err != nil {
		return nil, err
	}
	return
}

// LoadLoggers returns one logger per subsystem, with levels taken from the
// corresponding config sections.
func LoadLoggers(c *conf.ConfigFile) (loggers []log.Logger, err error) {
	var logfile io.Writer

	logfilename, err := c.GetString("default", "logfile")
	if err == nil && logfilename != "" {
		logfile, err = os.OpenFile(logfilename, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			logfile = os.Stderr
		}
	} else {
		logfile = os.Stderr
	}

	loggers = make([]log.Logger, NumberOfLoggers)
	loggers[LoggerMain], err = loadLogger(logfile, c, "default", "[Apnsgate]")
	if err != nil {
		return nil, err
	}
	loggers[LoggerGateway], err = loadLogger(logfile, c, "Gateway", "[Gateway]")
	if err != nil {
		return nil, err
	}
	loggers[LoggerFeedback], err = loadLogger(logfile, c, "Feedback", "[Feedback]")
	if err != nil {
		return nil, err
	}
	loggers[LoggerWeb], err = loadLogger(logfile, c, "WebFrontend", "[WebFrontend]")
	if err != nil {
		return nil, err
	}
	return loggers, nil
}

// LoadServiceName returns the name under which invalid tokens are
// registered.
func LoadServiceName(c *conf.ConfigFile) string {
	name, err := c.GetString("default", "service")
	if err != nil || name == "" {
		name = "default"
	}
	return name
}

// LoadGatewayConfig returns a representation of the [Gateway] section.
// The failure callback is wired up by the caller.
func LoadGatewayConfig(c *conf.ConfigFile) (apns.ServiceConfig, error) {
	var sc apns.ServiceConfig
	var err error

	sc.CertFile, err = c.GetString("Gateway", "cert")
	if err != nil || sc.CertFile == "" {
		return sc, fmt.Errorf("in section [Gateway], cert is required: %v", err)
	}
	sc.KeyFile, err = c.GetString("Gateway", "key")
	if err != nil || sc.KeyFile == "" {
		return sc, fmt.Errorf("in section [Gateway], key is required: %v", err)
	}
	if sandbox, serr := c.GetBool("Gateway", "sandbox"); serr == nil {
		sc.Sandbox = sandbox
	}
	if addr, aerr := c.GetString("Gateway", "addr"); aerr == nil {
		sc.Addr = addr
	}
	if skip, serr := c.GetBool("Gateway", "skipverify"); serr == nil {
		sc.SkipVerify = skip
	}
	if n, nerr := c.GetInt("Gateway", "backlog_size"); nerr == nil && n > 0 {
		sc.BacklogSize = n
	}
	if n, nerr := c.GetInt("Gateway", "history_size"); nerr == nil && n > 0 {
		sc.HistorySize = n
	}
	if n, nerr := c.GetInt("Gateway", "watchdog_interval"); nerr == nil && n > 0 {
		sc.WatchdogPeriod = time.Duration(n) * time.Second
	}
	if n, nerr := c.GetInt("Gateway", "reconnect_threshold"); nerr == nil && n > 0 {
		sc.ReconnectAfter = time.Duration(n) * time.Second
	}
	return sc, nil
}

// LoadFeedbackConfig returns a representation of the [Feedback] section.
// Certificate material defaults to the gateway's.
func LoadFeedbackConfig(c *conf.ConfigFile, gateway apns.ServiceConfig) apns.FeedbackServiceConfig {
	fc := apns.FeedbackServiceConfig{
		CertFile:   gateway.CertFile,
		KeyFile:    gateway.KeyFile,
		Sandbox:    gateway.Sandbox,
		SkipVerify: gateway.SkipVerify,
	}
	if gateway.Addr != "" {
		fc.Addr = apns.FeedbackAddrForGateway(gateway.Addr)
	}
	if addr, err := c.GetString("Feedback", "addr"); err == nil && addr != "" {
		fc.Addr = addr
	}
	if n, err := c.GetInt("Feedback", "interval"); err == nil && n > 0 {
		fc.Interval = time.Duration(n) * time.Second
	}
	return fc
}

// LoadTokenDBConfig returns the [TokenDB] section, and whether the
// registry is enabled at all.
func LoadTokenDBConfig(c *conf.ConfigFile) (db.TokenDBConfig, bool) {
	var tc db.TokenDBConfig
	enabled, err := c.GetBool("TokenDB", "enabled")
	if err != nil || !enabled {
		return tc, false
	}
	if addr, aerr := c.GetString("TokenDB", "addr"); aerr == nil {
		tc.Addr = addr
	}
	if password, perr := c.GetString("TokenDB", "password"); perr == nil {
		tc.Password = password
	}
	if database, derr := c.GetInt("TokenDB", "db"); derr == nil {
		tc.Database = database
	}
	return tc, true
}

// LoadWebAddr returns the REST frontend address, empty if disabled.
func LoadWebAddr(c *conf.ConfigFile) string {
	addr, err := c.GetString("WebFrontend", "addr")
	if err != nil {
		return ""
	}
	return addr
}
