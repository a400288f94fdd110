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
	"context"

	"crypto-payments-go/internal/models"
)

// FindWalletByAddress resolves an on-chain address to the platform wallet
// holding it. Addresses compare case-insensitively; the row is not locked.
func (t *paymentTx) FindWalletByAddress(ctx context.Context, address, currency string) (*models.Wallet, error) {
	return t.getWallet(ctx, t.d.q(queryFindWalletByAddress), address, currency)
}
