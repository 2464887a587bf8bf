package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/logger"
)

// CandidateBatch is one completed strategy run together with the raw trading
// ideas it produced.
type CandidateBatch struct {
	Run        models.StrategyRun `json:"run"`
	Candidates []models.Candidate `json:"candidates"`
}

// CandidateBuffer collects strategy output between loop cycles. The Kafka
// handler appends as messages arrive; the coordinator drains one account's
// batches at the start of its generate phase.
type CandidateBuffer struct {
	mu      sync.Mutex
	pending map[string][]CandidateBatch // accountID -> batches
}

// NewCandidateBuffer creates an empty buffer.
func NewCandidateBuffer() *CandidateBuffer {
	return &CandidateBuffer{pending: make(map[string][]CandidateBatch)}
}

// Add appends a batch for its account.
func (b *CandidateBuffer) Add(batch CandidateBatch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[batch.Run.AccountID] = append(b.pending[batch.Run.AccountID], batch)
}

// Drain removes and returns all buffered batches for an account.
func (b *CandidateBuffer) Drain(accountID string) []CandidateBatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	batches := b.pending[accountID]
	delete(b.pending, accountID)
	return batches
}

// CandidatesHandler consumes strategy-run output from Kafka and buffers it
// for the next loop cycle. Implements pkg/kafka.MessageHandler.
type CandidatesHandler struct {
	topic  string
	buffer *CandidateBuffer
	logger *logger.Logger
}

// NewCandidatesHandler creates a handler for the strategy candidates topic.
func NewCandidatesHandler(topic string, buffer *CandidateBuffer, lg *logger.Logger) *CandidatesHandler {
	return &CandidatesHandler{topic: topic, buffer: buffer, logger: lg}
}

func (h *CandidatesHandler) Topic() string { return h.topic }

func (h *CandidatesHandler) Handle(ctx context.Context, data []byte) error {
	var batch CandidateBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return fmt.Errorf("decode candidate batch: %w", err)
	}
	if batch.Run.AccountID == "" {
		return fmt.Errorf("candidate batch missing account id")
	}
	h.buffer.Add(batch)
	h.logger.Debug("buffered strategy candidates",
		logger.String("run_id", batch.Run.ID),
		logger.String("account", batch.Run.AccountID),
		logger.Int("candidates", len(batch.Candidates)))
	return nil
}
