package services

import "errors"

var (
	// ErrPromotionInvalidCode signals the supplied promotion code is missing or malformed.
	ErrPromotionInvalidCode = errors.New("promotion service: invalid promotion code")
	// ErrPromotionNotFound indicates no promotion exists for the provided code.
	ErrPromotionNotFound = errors.New("promotion service: promotion not found")
	// ErrPromotionNotStarted indicates the promotion's validity window has not opened.
	ErrPromotionNotStarted = errors.New("promotion service: promotion has not started yet")
	// ErrPromotionExpired indicates the promotion's validity window has closed.
	ErrPromotionExpired = errors.New("promotion service: promotion has expired")
	// ErrPromotionExhausted indicates the usage cap has been reached.
	ErrPromotionExhausted = errors.New("promotion service: promotion usage limit reached")
	// ErrPromotionMinimumNotMet indicates the subtotal is below the promotion's minimum order amount.
	ErrPromotionMinimumNotMet = errors.New("promotion service: order subtotal below promotion minimum")
	// ErrPromotionDuplicateCode indicates another promotion already uses the code.
	ErrPromotionDuplicateCode = errors.New("promotion service: promotion code already exists")
	// ErrPromotionInvalidWindow indicates the start date is not before the end date.
	ErrPromotionInvalidWindow = errors.New("promotion service: start date must be before end date")
)
