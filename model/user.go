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

import "time"

// User is the subset of a user profile needed to initiate payouts.
type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	ProcessorAccountID *string   `json:"processor_account_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// HasProcessorAccount reports whether the user has been onboarded with the payment processor.
func (u *User) HasProcessorAccount() bool {
	return u.ProcessorAccountID != nil && *u.ProcessorAccountID != ""
}
