// Package repository содержит реализации журнала расчётов по заказам.
package repository

import (
	"errors"
)

var (
	// ErrSettlementNotFound возвращается, если по заказу нет записи.
	ErrSettlementNotFound = errors.New("settlement not found")
	// ErrSettlementExists возвращается при попытке повторно записать завершённый расчёт.
	ErrSettlementExists = errors.New("settlement already exists")
)
