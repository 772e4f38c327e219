// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package failures

import (
	"encoding/json"
	"fmt"
	"sync"
)

type configuration struct {
	// Configurations of all registered handlers. A nil value means no
	// failure is injected for that key.
	configs  map[string]*json.RawMessage
	handlers map[string]func(json.RawMessage) error // Key->Handler mapping.
	lock     sync.Mutex                             // Protects the fields above.
}

// register a failure handler under the given key of failure configuration.
func (c *configuration) register(key string, handler func(json.RawMessage) error) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if _, ok := c.handlers[key]; ok {
		return fmt.Errorf("Key %q is already registered.", key)
	}
	c.handlers[key] = handler
	c.configs[key] = nil
	return nil
}

// MarshalJSON serializes the configuration object to JSON.
func (c *configuration) MarshalJSON() ([]byte, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return json.Marshal(c.configs)
}

// applyUpdates applies a posted configuration. Registered keys missing from
// 'updates' are reset: their handler is called with nil if they currently
// hold a value.
func (c *configuration) applyUpdates(updates map[string]*json.RawMessage) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	for key := range updates {
		if _, ok := c.configs[key]; !ok {
			return fmt.Errorf("Key %q is not registered", key)
		}
	}

	for key, curValue := range c.configs {
		updateValue := updates[key]

		if updateValue != nil {
			if err := c.handlers[key](*updateValue); err != nil {
				return err
			}
		}
		if updateValue == nil && curValue != nil {
			if err := c.handlers[key](nil); err != nil {
				return err
			}
		}
		c.configs[key] = updateValue
	}
	return nil
}
