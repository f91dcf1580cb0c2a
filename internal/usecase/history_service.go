package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/riskibarqy/tm-alerts/internal/domain/history"
	"github.com/riskibarqy/tm-alerts/internal/domain/jobscheduler"
)

type DailyOverview struct {
	ProcessingDate string                                  `json:"processing_date"`
	Entries        []history.Entry                         `json:"entries"`
	Dispatches     []jobscheduler.DispatchEvent            `json:"dispatches"`
	Counts         map[history.Type]map[history.Status]int `json:"counts"`
}

type HistoryService struct {
	history  history.Repository
	dispatch jobscheduler.Repository
}

func NewHistoryService(historyRepo history.Repository, dispatchRepo jobscheduler.Repository) *HistoryService {
	return &HistoryService{history: historyRepo, dispatch: dispatchRepo}
}

func (s *HistoryService) DailyOverview(ctx context.Context, processingDate string) (DailyOverview, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.HistoryService.DailyOverview")
	defer span.End()

	processingDate = strings.TrimSpace(processingDate)
	if _, err := time.Parse(history.DateLayout, processingDate); err != nil {
		return DailyOverview{}, fmt.Errorf("%w: processing_date must be YYYY-MM-DD", ErrInvalidInput)
	}

	entries, err := s.history.ListByDate(ctx, processingDate)
	if err != nil {
		return DailyOverview{}, fmt.Errorf("list history date=%s: %w", processingDate, err)
	}

	dispatches := []jobscheduler.DispatchEvent{}
	if s.dispatch != nil {
		dispatches, err = s.dispatch.ListByDate(ctx, processingDate)
		if err != nil {
			return DailyOverview{}, fmt.Errorf("list dispatches date=%s: %w", processingDate, err)
		}
	}

	counts := make(map[history.Type]map[history.Status]int, 2)
	for _, e := range entries {
		if counts[e.Type] == nil {
			counts[e.Type] = make(map[history.Status]int, 4)
		}
		counts[e.Type][e.Status]++
	}

	return DailyOverview{
		ProcessingDate: processingDate,
		Entries:        entries,
		Dispatches:     dispatches,
		Counts:         counts,
	}, nil
}
