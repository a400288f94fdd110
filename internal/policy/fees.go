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

// Fees for one payment. Gas is denominated in FeeCurrency, Service in the
// payment currency.
type Fees struct {
	Gas         decimal.Decimal
	Service     decimal.Decimal
	Total       decimal.Decimal
	FeeCurrency string
}

// ComputeFees returns the gas and service fee for sending amount of currency.
func (t *Table) ComputeFees(amount decimal.Decimal, currency string) (Fees, error) {
	c, ok := t.currencies[currency]
	if !ok {
		return Fees{}, fmt.Errorf("unsupported currency %s", currency)
	}
	service := amount.Mul(t.serviceRate)
	return Fees{
		Gas:         c.GasFee,
		Service:     service,
		Total:       c.GasFee.Add(service),
		FeeCurrency: c.FeeCurrency,
	}, nil
}

// Debits splits what a payment draws from each wallet: amount plus service
// fee from the payment currency, gas from the fee currency. When both are
// the same currency the map has a single entry.
func (f Fees) Debits(amount decimal.Decimal, currency string) map[string]decimal.Decimal {
	debits := map[string]decimal.Decimal{currency: amount.Add(f.Service)}
	debits[f.FeeCurrency] = debits[f.FeeCurrency].Add(f.Gas)
	return debits
}
