// Package model содержит доменные сущности платёжного моста.
package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// SettlementStatus описывает состояние расчёта по заказу.
type SettlementStatus string

const (
	SettlementStatusPending SettlementStatus = "pending"
	SettlementStatusSuccess SettlementStatus = "success"
)

// PaymentOrder описывает входящий заказ на выплату токенов.
type PaymentOrder struct {
	OrderID   string
	Address   common.Address
	RWAAmount decimal.Decimal
	// Offset задаётся в процентах: 10 означает +10%.
	Offset float64
}

// Settlement описывает сохранённый результат расчёта по заказу.
type Settlement struct {
	OrderID     string           `json:"order"`
	Status      SettlementStatus `json:"status"`
	Address     string           `json:"address,omitempty"`
	TxHash      string           `json:"tx_hash,omitempty"`
	TokenAmount string           `json:"token_amount,omitempty"`
	RWAAmount   string           `json:"rwa_amount,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Reserves содержит резервы пула, упорядоченные по роли токенов.
type Reserves struct {
	Settlement *big.Int
	Reference  *big.Int
}

// Quote описывает результат конвертации заказа в количество токенов.
type Quote struct {
	Pegged       *big.Int
	Rate         *big.Int
	Intermediate *big.Int
	Reserves     Reserves
	Multiplier   int64
	TokenAmount  *big.Int
}
