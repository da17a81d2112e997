package dualstore_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trezcool/calisma/core/dualstore"
	"github.com/trezcool/calisma/core/legacykey"
	"github.com/trezcool/calisma/services/logger"
)

type recordingPrimary struct {
	mu     sync.Mutex
	stored []legacykey.Key
	panics bool
}

func (p *recordingPrimary) Lookup(context.Context, legacykey.Key) (json.RawMessage, error) {
	return nil, dualstore.ErrNotFound
}

func (p *recordingPrimary) Store(_ context.Context, key legacykey.Key, _ json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panics {
		panic("boom")
	}
	p.stored = append(p.stored, key)
	return nil
}

func TestMigrationQueue(t *testing.T) {
	primary := &recordingPrimary{}
	queue := dualstore.NewMigrationQueue(primary, logsvc.NewZapLogger(zaptest.NewLogger(t)), 4, time.Second)
	queue.Start()

	assert.True(t, queue.Enqueue(legacykey.Study("Fen1"), json.RawMessage(`[]`)))
	assert.True(t, queue.Enqueue(legacykey.Study("Fen2"), json.RawMessage(`[]`)))
	require.NoError(t, queue.Flush(context.Background()))
	assert.Equal(t, 0, queue.Pending())

	primary.mu.Lock()
	assert.Equal(t, []legacykey.Key{legacykey.Study("Fen1"), legacykey.Study("Fen2")}, primary.stored)
	primary.mu.Unlock()

	require.NoError(t, queue.Close(context.Background()))
	assert.False(t, queue.Enqueue(legacykey.Study("Fen3"), json.RawMessage(`[]`)), "Enqueue() accepted after Close()")
	require.NoError(t, queue.Close(context.Background()), "second Close()")
}

func TestMigrationQueue_panicIsContained(t *testing.T) {
	primary := &recordingPrimary{panics: true}
	queue := dualstore.NewMigrationQueue(primary, logsvc.NewZapLogger(zaptest.NewLogger(t)), 4, time.Second)
	queue.Start()

	assert.True(t, queue.Enqueue(legacykey.Study("Fen1"), json.RawMessage(`[]`)))
	require.NoError(t, queue.Flush(context.Background()))

	primary.mu.Lock()
	primary.panics = false
	primary.mu.Unlock()

	assert.True(t, queue.Enqueue(legacykey.Study("Fen2"), json.RawMessage(`[]`)))
	require.NoError(t, queue.Close(context.Background()))

	primary.mu.Lock()
	defer primary.mu.Unlock()
	assert.Equal(t, []legacykey.Key{legacykey.Study("Fen2")}, primary.stored)
}

func TestMigrationQueue_full(t *testing.T) {
	primary := &recordingPrimary{}
	queue := dualstore.NewMigrationQueue(primary, logsvc.NewZapLogger(zaptest.NewLogger(t)), 1, time.Second)
	// not started: the second message finds the buffer full
	assert.True(t, queue.Enqueue(legacykey.Study("Fen1"), json.RawMessage(`[]`)))
	assert.False(t, queue.Enqueue(legacykey.Study("Fen2"), json.RawMessage(`[]`)))
	require.NoError(t, queue.Close(context.Background()))
}
