package usecase

import (
	"context"
	"sync"

	"BlockPulse/internal/domain/models"
)

type memStore struct {
	mu      sync.Mutex
	rows    []models.Observation
	err     error
	block   *models.LatestBlock
	price   *models.LatestPrice
	joined  []models.JoinedRow
	queries []models.HistoryQuery
	latestN int
}

func (s *memStore) Init(context.Context) error { return nil }

func (s *memStore) Store(_ context.Context, obs models.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, obs)
	return nil
}

func (s *memStore) LatestBlock(context.Context) (*models.LatestBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestN++
	if s.err != nil {
		return nil, s.err
	}
	return s.block, nil
}

func (s *memStore) LatestPrice(context.Context) (*models.LatestPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestN++
	if s.err != nil {
		return nil, s.err
	}
	return s.price, nil
}

func (s *memStore) Joined(_ context.Context, q models.HistoryQuery) ([]models.JoinedRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	return s.joined, nil
}

func (s *memStore) Health(context.Context) error { return s.err }

func (s *memStore) Close() error { return nil }

type memPublisher struct {
	mu   sync.Mutex
	msgs []models.Observation
	err  error
}

func (p *memPublisher) Publish(_ context.Context, obs models.Observation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, obs)
	return nil
}

func (p *memPublisher) Close() error { return nil }
