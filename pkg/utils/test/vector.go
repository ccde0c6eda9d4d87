package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/strata/pkg/vector"
)

// IndexCall is one recorded Upsert.
type IndexCall struct {
	Key     string
	Payload []byte
	Meta    vector.Metadata
}

// MockIndexer records upserts.
type MockIndexer struct {
	mu    sync.Mutex
	calls []IndexCall

	// Fail causes Upsert to return an error.
	Fail bool
}

func NewMockIndexer() *MockIndexer {
	return &MockIndexer{}
}

func (m *MockIndexer) Upsert(_ context.Context, key string, payload []byte, meta vector.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return errors.New("mock index failure")
	}
	m.calls = append(m.calls, IndexCall{Key: key, Payload: append([]byte(nil), payload...), Meta: meta})
	return nil
}

// Calls returns a copy of the recorded upserts.
func (m *MockIndexer) Calls() []IndexCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]IndexCall(nil), m.calls...)
}

// MockVectorDriver is a test vector driver
type MockVectorDriver struct {
	mu        sync.Mutex
	documents []vector.Document
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = append(m.documents, docs...)
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, _ []float32, topK int) ([]vector.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var results []vector.QueryResult
	for _, d := range m.documents {
		if len(results) == topK {
			break
		}
		results = append(results, vector.QueryResult{Document: d, Score: 1})
	}
	return results, nil
}

func (m *MockVectorDriver) Delete(context.Context, []string) error {
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}

// Documents returns the stored documents.
func (m *MockVectorDriver) Documents() []vector.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]vector.Document(nil), m.documents...)
}
