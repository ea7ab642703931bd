/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import "strings"

// SupportedCurrencies lists the lower-case ISO codes payouts can be made in.
var SupportedCurrencies = []string{"usd", "kes"}

// NormalizeCurrency lower-cases and trims a currency code.
func NormalizeCurrency(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}

// IsSupportedCurrency reports whether currency is one of SupportedCurrencies.
func IsSupportedCurrency(currency string) bool {
	c := NormalizeCurrency(currency)
	for _, s := range SupportedCurrencies {
		if s == c {
			return true
		}
	}
	return false
}
