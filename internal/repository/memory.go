package repository

import (
	"context"
	"sync"
	"time"

	"github.com/mmeshcher/rwa-bridge/internal/model"
)

// MemoryLedger хранит журнал расчётов в памяти процесса.
type MemoryLedger struct {
	mu    sync.Mutex
	items map[string]model.Settlement
	now   func() time.Time
}

// NewMemoryLedger создаёт пустой журнал в памяти.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		items: make(map[string]model.Settlement),
		now:   time.Now,
	}
}

// Close ничего не делает и нужен для совместимости с остальными журналами.
func (l *MemoryLedger) Close() error {
	return nil
}

// Get возвращает запись по заказу.
func (l *MemoryLedger) Get(ctx context.Context, orderID string) (*model.Settlement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.items[orderID]
	if !ok {
		return nil, ErrSettlementNotFound
	}
	return &s, nil
}

// Reserve атомарно создаёт ожидающую запись, если по заказу ещё ничего нет.
func (l *MemoryLedger) Reserve(ctx context.Context, orderID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.items[orderID]; ok {
		return false, nil
	}
	l.items[orderID] = model.Settlement{
		OrderID:   orderID,
		Status:    model.SettlementStatusPending,
		CreatedAt: l.now().UTC(),
	}
	return true, nil
}

// Complete сохраняет итог расчёта на месте ожидающей записи.
func (l *MemoryLedger) Complete(ctx context.Context, s model.Settlement) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.items[s.OrderID]; ok && existing.Status != model.SettlementStatusPending {
		return ErrSettlementExists
	}
	l.items[s.OrderID] = s
	return nil
}

// Release удаляет ожидающую запись. Завершённые записи не затрагиваются.
func (l *MemoryLedger) Release(ctx context.Context, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.items[orderID]; ok && existing.Status == model.SettlementStatusPending {
		delete(l.items, orderID)
	}
	return nil
}
