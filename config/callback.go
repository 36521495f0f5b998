package config

import "sync"

// ConfigCallback lets packages with global state (the logger) react to
// the configuration once it is known.
type ConfigCallback[T any] struct {
	mu        sync.Mutex
	callbacks []func(T)
}

func (cc *ConfigCallback[T]) AddCallback(callback func(T)) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	cc.callbacks = append(cc.callbacks, callback)
}

func (cc *ConfigCallback[T]) Call(value T) {
	cc.mu.Lock()
	callbacks := append([]func(T){}, cc.callbacks...)
	cc.mu.Unlock()

	for _, callback := range callbacks {
		callback(value)
	}
}
