package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/castlab/podcast-pipeline/internal/extract"
	"github.com/castlab/podcast-pipeline/internal/transcribe"
)

var errNoSuchObject = errors.New("no such object")

type transcriberFake struct {
	fn func(ctx context.Context, audio []byte, format string) (transcribe.Transcript, error)

	mu    sync.Mutex
	calls int
}

func (f *transcriberFake) Transcribe(ctx context.Context, audio []byte, format string) (transcribe.Transcript, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(ctx, audio, format)
}

func (f *transcriberFake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type extractorFake struct {
	fn func(ctx context.Context, tr transcribe.Transcript) ([]extract.KeyPoint, error)
}

func (f *extractorFake) Extract(ctx context.Context, tr transcribe.Transcript) ([]extract.KeyPoint, error) {
	return f.fn(ctx, tr)
}

// blobFake is an in-memory BlobStore with optional error injection.
type blobFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
	putErr  error
}

func newBlobFake() *blobFake {
	return &blobFake{objects: make(map[string][]byte)}
}

func (b *blobFake) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, b.getErr
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, errNoSuchObject
	}
	return append([]byte(nil), data...), nil
}

func (b *blobFake) Put(ctx context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.objects[key] = append([]byte(nil), data...)
	return nil
}

func (b *blobFake) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k := range b.objects {
		out = append(out, k)
	}
	return out
}
