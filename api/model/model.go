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

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/blnkfinance/payq/model"
)

func supportedCurrency(value interface{}) error {
	currency, _ := value.(string)
	if !model.IsSupportedCurrency(currency) {
		return errors.New("currency must be one of usd, kes")
	}
	return nil
}

func (e *EnqueuePayment) ValidateEnqueuePayment() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.To, validation.Required),
		validation.Field(&e.From, validation.By(func(value interface{}) error {
			if e.From != "" && e.From == e.To {
				return errors.New("must differ from to")
			}
			return nil
		})),
		validation.Field(&e.Amount, validation.Required, validation.Min(int64(1))),
		validation.Field(&e.Currency, validation.Required, validation.By(supportedCurrency)),
	)
}

func (t *CreateTransaction) ValidateCreateTransaction() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Email, validation.Required, is.EmailFormat),
		validation.Field(&t.Amount, validation.Required, validation.Min(int64(1))),
		validation.Field(&t.Currency, validation.Required, validation.By(supportedCurrency)),
	)
}
