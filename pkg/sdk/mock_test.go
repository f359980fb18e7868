package jsonstore

import (
	"context"

	domdoc "github.com/kailas-cloud/jsonstore/internal/domain/document"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/operator"
	entryuc "github.com/kailas-cloud/jsonstore/internal/usecase/entry"
	healthuc "github.com/kailas-cloud/jsonstore/internal/usecase/health"
)

// --- entryUseCase mock ---

type mockEntryUC struct {
	createFn  func(ctx context.Context, body map[string]any, id string, updated any) (domdoc.Entry, error)
	getFn     func(ctx context.Context, id string) (domdoc.Entry, error)
	updateFn  func(ctx context.Context, id string, body map[string]any, updated any) (domdoc.Entry, error)
	deleteFn  func(ctx context.Context, id string) error
	searchFn  func(ctx context.Context, key map[string]any, opts entryuc.SearchOptions) ([]domdoc.Entry, error)
	countFn   func(ctx context.Context, key map[string]any, bare operator.Kind) (int, error)
	reindexFn func(ctx context.Context) (int, error)
	pingFn    func(ctx context.Context) error
}

func (m *mockEntryUC) Create(ctx context.Context, body map[string]any, id string, updated any) (domdoc.Entry, error) {
	return m.createFn(ctx, body, id, updated)
}

func (m *mockEntryUC) Get(ctx context.Context, id string) (domdoc.Entry, error) {
	return m.getFn(ctx, id)
}

func (m *mockEntryUC) Update(ctx context.Context, id string, body map[string]any, updated any) (domdoc.Entry, error) {
	return m.updateFn(ctx, id, body, updated)
}

func (m *mockEntryUC) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

func (m *mockEntryUC) Search(
	ctx context.Context, key map[string]any, opts entryuc.SearchOptions,
) ([]domdoc.Entry, error) {
	return m.searchFn(ctx, key, opts)
}

func (m *mockEntryUC) Count(ctx context.Context, key map[string]any, bare operator.Kind) (int, error) {
	return m.countFn(ctx, key, bare)
}

func (m *mockEntryUC) Reindex(ctx context.Context) (int, error) {
	return m.reindexFn(ctx)
}

func (m *mockEntryUC) Ping(ctx context.Context) error {
	return m.pingFn(ctx)
}

// --- healthUseCase mock ---

type mockHealthUC struct {
	report healthuc.Report
}

func (m *mockHealthUC) Check(context.Context) healthuc.Report { return m.report }
