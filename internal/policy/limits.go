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

package policy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	WindowHourly = "hourly"
	WindowDaily  = "daily"
)

// SpendingWindow is what a user has already sent in one currency.
type SpendingWindow struct {
	Hourly decimal.Decimal
	Daily  decimal.Decimal
}

type LimitCheck struct {
	Allowed bool
	Window  string
	Cap     decimal.Decimal
	Reason  string
}

// CheckSpendingLimits reports whether sending amount keeps the user within
// both caps. Spending exactly up to a cap is allowed.
func (t *Table) CheckSpendingLimits(window SpendingWindow, amount decimal.Decimal, currency string) LimitCheck {
	c, ok := t.currencies[currency]
	if !ok {
		return LimitCheck{Reason: fmt.Sprintf("unsupported currency %s", currency)}
	}

	checks := []struct {
		name  string
		spent decimal.Decimal
		cap   decimal.Decimal
	}{
		{WindowHourly, window.Hourly, c.HourlyCap},
		{WindowDaily, window.Daily, c.DailyCap},
	}
	for _, chk := range checks {
		if chk.spent.Add(amount).GreaterThan(chk.cap) {
			return LimitCheck{
				Window: chk.name,
				Cap:    chk.cap,
				Reason: fmt.Sprintf("%s limit of %s %s exceeded", chk.name, chk.cap.String(), currency),
			}
		}
	}
	return LimitCheck{Allowed: true}
}
