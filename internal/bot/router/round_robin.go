package router

import "sync/atomic"

// RoundRobinStrategy реализует стратегию выбора "по кругу" (Round Robin).
type RoundRobinStrategy struct {
	// currentIndex хранит индекс следующего выбора.
	currentIndex atomic.Uint32
}

// NewRoundRobinStrategy создает новую Round Robin стратегию.
func NewRoundRobinStrategy() *RoundRobinStrategy {
	return &RoundRobinStrategy{}
}

// Next возвращает следующий сервер в списке, перебирая их по кругу.
func (s *RoundRobinStrategy) Next(backends []Backend) (Backend, error) {
	if len(backends) == 0 {
		return nil, ErrNoHealthyBackends
	}
	idx := s.currentIndex.Add(1) - 1
	return backends[idx%uint32(len(backends))], nil
}
