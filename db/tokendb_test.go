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

package db

import (
	"fmt"
	"sort"
	"testing"

	"github.com/go-redis/redis"

	"github.com/uniqush/apnsgate/test_util"
)

// fakeRedisClient implements the redis subset the registry uses with plain
// in-memory sets.
type fakeRedisClient struct {
	sets   map[string]map[string]bool
	closed bool
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{sets: make(map[string]map[string]bool)}
}

func (f *fakeRedisClient) SAdd(key string, members ...interface{}) *redis.IntCmd {
	set := f.sets[key]
	if set == nil {
		set = make(map[string]bool)
		f.sets[key] = set
	}
	added := int64(0)
	for _, m := range members {
		s := fmt.Sprintf("%v", m)
		if !set[s] {
			set[s] = true
			added++
		}
	}
	return redis.NewIntResult(added, nil)
}

func (f *fakeRedisClient) SRem(key string, members ...interface{}) *redis.IntCmd {
	removed := int64(0)
	for _, m := range members {
		s := fmt.Sprintf("%v", m)
		if f.sets[key][s] {
			delete(f.sets[key], s)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (f *fakeRedisClient) SIsMember(key string, member interface{}) *redis.BoolCmd {
	return redis.NewBoolResult(f.sets[key][fmt.Sprintf("%v", member)], nil)
}

func (f *fakeRedisClient) SMembers(key string) *redis.StringSliceCmd {
	var members []string
	for m := range f.sets[key] {
		members = append(members, m)
	}
	sort.Strings(members)
	return redis.NewStringSliceResult(members, nil)
}

func (f *fakeRedisClient) Close() error {
	f.closed = true
	return nil
}

func TestInvalidTokenRegistry(t *testing.T) {
	fake := newFakeRedisClient()
	tokenDB := &InvalidTokenDB{client: fake}

	invalid, err := tokenDB.IsInvalid("myapp", "tokenA")
	test_util.ExpectNoError(t, err, "IsInvalid")
	test_util.ExpectTrue(t, !invalid, "an unknown token should not be invalid")

	test_util.ExpectNoError(t, tokenDB.MarkInvalid("myapp", "tokenA"), "MarkInvalid")
	test_util.ExpectNoError(t, tokenDB.MarkInvalid("myapp", "tokenB"), "MarkInvalid")

	invalid, err = tokenDB.IsInvalid("myapp", "tokenA")
	test_util.ExpectNoError(t, err, "IsInvalid")
	test_util.ExpectTrue(t, invalid, "a marked token should be invalid")

	tokens, err := tokenDB.InvalidTokens("myapp")
	test_util.ExpectNoError(t, err, "InvalidTokens")
	test_util.ExpectEquals(t, []string{"tokenA", "tokenB"}, tokens, "wrong invalid token set")

	test_util.ExpectNoError(t, tokenDB.Unmark("myapp", "tokenA"), "Unmark")
	invalid, err = tokenDB.IsInvalid("myapp", "tokenA")
	test_util.ExpectNoError(t, err, "IsInvalid")
	test_util.ExpectTrue(t, !invalid, "an unmarked token should no longer be invalid")

	test_util.ExpectNoError(t, tokenDB.Close(), "Close")
	test_util.ExpectTrue(t, fake.closed, "Close should reach the redis client")
}

func TestTokensAreScopedPerService(t *testing.T) {
	fake := newFakeRedisClient()
	tokenDB := &InvalidTokenDB{client: fake}

	test_util.ExpectNoError(t, tokenDB.MarkInvalid("appA", "token"), "MarkInvalid")
	invalid, err := tokenDB.IsInvalid("appB", "token")
	test_util.ExpectNoError(t, err, "IsInvalid")
	test_util.ExpectTrue(t, !invalid, "marks must not leak across services")
}
