package model

import (
	"github.com/blnkfinance/payq/model"
)

// EnqueuePayment is the body of POST /payments/enqueue. Amount is in minor units.
type EnqueuePayment struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	TransactionID string `json:"transaction_id"`
}

func (e *EnqueuePayment) ToPaymentDetails() model.PaymentDetails {
	return model.PaymentDetails{
		From:     e.From,
		To:       e.To,
		Amount:   e.Amount,
		Currency: model.NormalizeCurrency(e.Currency),
	}
}

// CreateTransaction is the body of POST /transactions.
type CreateTransaction struct {
	Email    string `json:"email"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}
