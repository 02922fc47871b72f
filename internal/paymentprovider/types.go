package paymentprovider

import "time"

// CreatePaymentRequest представляет запрос на создание платежа у провайдера.
type CreatePaymentRequest struct {
	Amount struct {
		Value    string `json:"value"`    // сумма, например "200.00"
		Currency string `json:"currency"` // валюта, например "RUB"
	} `json:"amount"`
	Metadata map[string]string `json:"metadata,omitempty"` // external_reference, user_uid и др.
}

// CreatePaymentResponse представляет ответ провайдера на создание платежа.
type CreatePaymentResponse struct {
	ID     string `json:"id"`     // ID платежа на стороне провайдера
	Status string `json:"status"` // статус платежа, например "pending"
	Amount struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
