package service

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// OrderNumberGenerator формат ORD<unix ms><4 цифры случайного суффикса>.
// Уникальность вероятностная, окончательно её проверяет уникальный индекс.
type OrderNumberGenerator struct {
	now  func() time.Time
	intn func(n int) int
}

func NewOrderNumberGenerator() *OrderNumberGenerator {
	return &OrderNumberGenerator{now: time.Now, intn: rand.IntN}
}

func (g *OrderNumberGenerator) Next() string {
	return fmt.Sprintf("ORD%d%04d", g.now().UnixMilli(), g.intn(10000))
}
