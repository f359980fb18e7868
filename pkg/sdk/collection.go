package jsonstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Collection stores values of T as entries. T is converted through its JSON
// form, so struct tags of encoding/json apply. The reserved keys __id__ and
// __updated__ must not appear in that form.
type Collection[T any] struct {
	client *Client
}

// NewCollection returns a typed view over client.
func NewCollection[T any](client *Client) *Collection[T] {
	return &Collection[T]{client: client}
}

// Create stores v under a generated id and returns the id.
func (c *Collection[T]) Create(ctx context.Context, v T) (string, error) {
	body, err := toBody(v)
	if err != nil {
		return "", err
	}
	e, err := c.client.Create(ctx, body)
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

// Put replaces the value stored under id, creating it when absent.
func (c *Collection[T]) Put(ctx context.Context, id string, v T) error {
	body, err := toBody(v)
	if err != nil {
		return err
	}
	_, err = c.client.Update(ctx, Entry{ID: id, Body: body})
	if err == nil || !isNotFound(err) {
		return err
	}
	_, err = c.client.Insert(ctx, Entry{ID: id, Body: body})
	return err
}

// Get returns the value stored under id.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	e, err := c.client.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	return fromBody[T](e.Body)
}

// Delete removes the value stored under id.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.client.Delete(ctx, id)
}

// Find returns values matching key, most recently updated first.
func (c *Collection[T]) Find(ctx context.Context, key map[string]any, opts SearchOptions) ([]T, error) {
	entries, err := c.client.Search(ctx, key, opts)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(entries))
	for i, e := range entries {
		if out[i], err = fromBody[T](e.Body); err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
	}
	return out, nil
}

func toBody(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("value must encode to a JSON object: %v: %w", err, ErrValidation)
	}
	return body, nil
}

func fromBody[T any](body map[string]any) (T, error) {
	var v T
	data, err := json.Marshal(body)
	if err != nil {
		return v, fmt.Errorf("encode body: %w", err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode body: %w", err)
	}
	return v, nil
}
