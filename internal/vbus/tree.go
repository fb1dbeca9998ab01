package vbus

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrTreePublished    = errors.New("tree is already published")
	ErrTreeNotPublished = errors.New("tree is not published")
	ErrUnknownPath      = errors.New("unknown attribute path")
)

type node struct {
	value     interface{}
	writeable bool
	onChange  OnChangeFunc
}

type attributeTree struct {
	mu             sync.RWMutex
	nodes          map[string]*node
	serviceName    string
	published      bool
	onValueChanged func(path string, value interface{})
}

func NewTree() Tree {
	return &attributeTree{
		nodes: make(map[string]*node),
	}
}

func (t *attributeTree) Register(path string, initial interface{}, writeable bool, onChange OnChangeFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.published {
		return ErrTreePublished
	}
	if _, ok := t.nodes[path]; ok {
		return fmt.Errorf("attribute path registered twice: %v", path)
	}

	t.nodes[path] = &node{
		value:     initial,
		writeable: writeable,
		onChange:  onChange,
	}

	return nil
}

func (t *attributeTree) PublishTree(serviceName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.published {
		return ErrTreePublished
	}

	t.serviceName = serviceName
	t.published = true

	return nil
}

func (t *attributeTree) ServiceName() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.serviceName
}

func (t *attributeTree) Read(path string) (interface{}, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[path]
	if !ok {
		return nil, false
	}

	return n.value, true
}

func (t *attributeTree) Write(path string, value interface{}) error {
	t.mu.Lock()

	n, ok := t.nodes[path]
	if !ok {
		t.mu.Unlock()
		return ErrUnknownPath
	}

	n.value = value
	observer := t.onValueChanged
	t.mu.Unlock()

	if observer != nil {
		observer(path, value)
	}

	return nil
}

func (t *attributeTree) RequestChange(path string, value interface{}) bool {
	t.mu.RLock()

	if !t.published {
		t.mu.RUnlock()
		return false
	}

	n, ok := t.nodes[path]
	if !ok || !n.writeable {
		t.mu.RUnlock()
		return false
	}
	onChange := n.onChange
	t.mu.RUnlock()

	// The hook runs without the tree lock held, it may read the tree.
	if onChange != nil && !onChange(path, value) {
		return false
	}

	t.mu.Lock()
	n.value = value
	observer := t.onValueChanged
	t.mu.Unlock()

	if observer != nil {
		observer(path, value)
	}

	return true
}

func (t *attributeTree) SetOnValueChanged(callback func(path string, value interface{})) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.onValueChanged = callback
}
