// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

/*
Package services adapts MediaSync components to suture.Service.

Each wrapper turns a component lifecycle into a blocking Serve(ctx) that
returns when ctx is canceled:

  - HTTPServerService: ListenAndServe and Shutdown of *http.Server
  - JobQueueService: Start(ctx) and Stop(ctx) of the backlite job store
  - LifecycleService: Start(ctx) error and Stop() of the scheduler and
    the session poller

Wrappers implement fmt.Stringer so suture can name them in its events.
*/
package services
