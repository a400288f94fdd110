/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"strconv"
	"strings"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

// dialect papers over the two differences between the backends we run on:
// placeholder style and row locking.
type dialect struct {
	name string
}

// q rewrites ? placeholders into $n for Postgres.
func (d dialect) q(query string) string {
	if d.name != driverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate appends a row lock on Postgres. SQLite transactions are opened
// with _txlock=immediate, which already serializes writers.
func (d dialect) forUpdate(query string) string {
	if d.name != driverPostgres {
		return d.q(query)
	}
	return d.q(query) + " FOR UPDATE"
}
