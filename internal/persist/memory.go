package persist

import (
	"context"
	"log/slog"
	"sync"

	"partnertrack/internal/domain"
)

// MemoryBackend holds the encoded blob in memory. Data is lost when the process exits.
type MemoryBackend struct {
	mu    sync.Mutex
	blob  []byte
	saves int
	// SaveErr, when set, is returned from every Save.
	SaveErr error
	log     *slog.Logger
}

func NewMemoryBackend(log *slog.Logger) *MemoryBackend {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryBackend{log: log}
}

// Seed replaces the stored blob with raw bytes, bypassing the codec.
func (b *MemoryBackend) Seed(blob []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blob = append([]byte(nil), blob...)
}

// Saves returns the number of successful saves.
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

func (b *MemoryBackend) Load(ctx context.Context) domain.AppState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blob == nil {
		return domain.Empty()
	}
	state, err := Decode(b.blob)
	if err != nil {
		b.log.ErrorContext(ctx, "failed to load state, starting empty", slog.Any("error", err))
		return domain.Empty()
	}
	return state
}

func (b *MemoryBackend) Save(_ context.Context, state domain.AppState) error {
	if b.SaveErr != nil {
		return b.SaveErr
	}
	data, err := Encode(state)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blob = data
	b.saves++
	return nil
}

func (b *MemoryBackend) Close() error { return nil }
