package storage

import "context"

// Async lifts a synchronous Backend to the AsyncBackend contract. Each call
// checks the context before delegating so cancelled operations never touch
// the underlying backend.
type Async struct {
	backend Backend
}

// NewAsync wraps b as an AsyncBackend.
func NewAsync(b Backend) *Async {
	return &Async{backend: b}
}

func (a *Async) Get(ctx context.Context, path string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, Unavailable(err)
	}
	return a.backend.Get(path)
}

func (a *Async) Put(ctx context.Context, path string, record *Record) error {
	if err := ctx.Err(); err != nil {
		return Unavailable(err)
	}
	return a.backend.Put(path, record)
}

func (a *Async) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return Unavailable(err)
	}
	return a.backend.Delete(path)
}

func (a *Async) ListAll(ctx context.Context) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, Unavailable(err)
	}
	return a.backend.ListAll()
}
