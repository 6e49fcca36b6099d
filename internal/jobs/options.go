// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/tomtom215/mediasync/internal/config"
)

// Options are the execution limits of one job name.
type Options struct {
	// ExpireIn bounds one attempt. It becomes the handler context deadline.
	ExpireIn   time.Duration `json:"expire_in"`
	RetryLimit int           `json:"retry_limit"`
	RetryDelay time.Duration `json:"retry_delay"`
}

// retention keeps finished tasks for a day, with payloads only for
// failures.
var retention = &backlite.Retention{
	Duration:   24 * time.Hour,
	OnlyFailed: false,
	Data:       &backlite.RetainData{OnlyFailed: true},
}

// DefaultOptions returns the built-in options of a job name.
func DefaultOptions(name Name) Options {
	switch name {
	case NameFullSync:
		return Options{ExpireIn: 4 * time.Hour, RetryLimit: 1, RetryDelay: 5 * time.Minute}
	case NameUsersSync, NameLibrariesSync:
		return Options{ExpireIn: 30 * time.Minute, RetryLimit: 2, RetryDelay: time.Minute}
	case NameItemsSync:
		return Options{ExpireIn: 2 * time.Hour, RetryLimit: 2, RetryDelay: 5 * time.Minute}
	case NameActivitiesSync:
		return Options{ExpireIn: time.Hour, RetryLimit: 2, RetryDelay: 2 * time.Minute}
	case NameRecentItemsSync, NameRecentActivitiesSync:
		return Options{ExpireIn: 30 * time.Minute, RetryLimit: 2, RetryDelay: time.Minute}
	case NameGenerateEmbeddings:
		return Options{ExpireIn: time.Hour, RetryLimit: 1, RetryDelay: 2 * time.Minute}
	default:
		return Options{ExpireIn: 30 * time.Minute, RetryLimit: 0, RetryDelay: time.Minute}
	}
}

// backlite reads a queue's configuration from the zero value of its task
// type, so overrides live at package level and must be applied before the
// queues are registered.
var (
	overridesMu sync.RWMutex
	overrides   = map[Name]Options{}
)

// ApplyOverrides merges configured options over the defaults. Zero fields
// keep the default.
func ApplyOverrides(cfg map[string]config.JobOptionsConfig) error {
	next := make(map[Name]Options, len(cfg))
	for key, o := range cfg {
		name, err := ParseName(key)
		if err != nil {
			return fmt.Errorf("jobs.options: %w", err)
		}
		opts := DefaultOptions(name)
		if o.ExpireIn > 0 {
			opts.ExpireIn = o.ExpireIn
		}
		if o.RetryLimit > 0 {
			opts.RetryLimit = o.RetryLimit
		}
		if o.RetryDelay > 0 {
			opts.RetryDelay = o.RetryDelay
		}
		next[name] = opts
	}

	overridesMu.Lock()
	overrides = next
	overridesMu.Unlock()
	return nil
}

// OptionsFor returns the effective options of a job name.
func OptionsFor(name Name) Options {
	overridesMu.RLock()
	o, ok := overrides[name]
	overridesMu.RUnlock()
	if ok {
		return o
	}
	return DefaultOptions(name)
}

func queueConfig(name Name) backlite.QueueConfig {
	o := OptionsFor(name)
	return backlite.QueueConfig{
		Name:        string(name),
		MaxAttempts: o.RetryLimit + 1,
		Backoff:     o.RetryDelay,
		Timeout:     o.ExpireIn,
		Retention:   retention,
	}
}
