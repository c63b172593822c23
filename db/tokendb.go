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

// Package db keeps the caller-side record of permanently invalid device
// tokens in redis. The gateway machinery itself is purely in-memory; this
// registry exists so the daemon can honor the "status 8 means stop sending
// to this token" contract across restarts.
package db

import (
	"fmt"

	"github.com/go-redis/redis"
)

// redisClient is the subset of *redis.Client the registry uses, so tests
// can substitute a fake.
type redisClient interface {
	SAdd(key string, members ...interface{}) *redis.IntCmd
	SRem(key string, members ...interface{}) *redis.IntCmd
	SIsMember(key string, member interface{}) *redis.BoolCmd
	SMembers(key string) *redis.StringSliceCmd
	Close() error
}

var _ redisClient = &redis.Client{}

// TokenDBConfig locates the redis instance backing the registry.
type TokenDBConfig struct {
	Addr     string
	Password string
	Database int
}

// InvalidTokenDB is a redis-backed set of device tokens that should no
// longer receive notifications, per service name.
type InvalidTokenDB struct {
	client redisClient
}

// NewInvalidTokenDB connects to redis. The connection is verified lazily on
// first use, matching go-redis behavior.
func NewInvalidTokenDB(conf TokenDBConfig) *InvalidTokenDB {
	addr := conf.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: conf.Password,
		DB:       conf.Database,
	})
	return &InvalidTokenDB{client: client}
}

func tokenSetKey(service string) string {
	return fmt.Sprintf("apnsgate:invalidtokens:%v", service)
}

// MarkInvalid records the token as permanently invalid for the service.
func (db *InvalidTokenDB) MarkInvalid(service, devToken string) error {
	return db.client.SAdd(tokenSetKey(service), devToken).Err()
}

// Unmark removes the token from the invalid set, e.g. after the device
// re-registers.
func (db *InvalidTokenDB) Unmark(service, devToken string) error {
	return db.client.SRem(tokenSetKey(service), devToken).Err()
}

// IsInvalid reports whether the token has been marked invalid.
func (db *InvalidTokenDB) IsInvalid(service, devToken string) (bool, error) {
	return db.client.SIsMember(tokenSetKey(service), devToken).Result()
}

// InvalidTokens returns every token marked invalid for the service.
func (db *InvalidTokenDB) InvalidTokens(service string) ([]string, error) {
	return db.client.SMembers(tokenSetKey(service)).Result()
}

// Close releases the redis connection.
func (db *InvalidTokenDB) Close() error {
	return db.client.Close()
}
