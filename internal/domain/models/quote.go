package models

// QuoteRequest is the query for the quote routes.
type QuoteRequest struct {
	Symbol string `query:"symbol" validate:"required,max=32,symbol"`
}

// ResetRequest names the bucket to refill; empty resets every bucket.
type ResetRequest struct {
	Name string `json:"name" validate:"omitempty,max=64"`
}

// BatchQuoteRequest is the query for the batch route: a comma separated list.
type BatchQuoteRequest struct {
	Symbols string `query:"symbols" validate:"required,max=512,symbols"`
}
