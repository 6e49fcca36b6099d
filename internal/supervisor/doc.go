// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

/*
Package supervisor runs MediaSync's long-lived services under a suture v4
tree.

	RootSupervisor ("mediasync")
	├── DataSupervisor ("data-layer")
	│   └── JobQueueService
	├── ProcessingSupervisor ("processing-layer")
	│   ├── LifecycleService ("scheduler")
	│   ├── LifecycleService ("session-poller")
	│   └── websocket.Bridge ("session-stream-bridge")
	└── APISupervisor ("api-layer")
	    ├── websocket.Hub ("websocket-hub")
	    └── HTTPServerService

Crashed services restart with suture's backoff. Each layer counts its own
failures, so a poller that keeps failing against an unreachable server
never takes the admin API down with it.

Supervisor events are logged through sutureslog with the slog logger from
logging.NewSlogLogger:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{})
	tree.AddDataService(services.NewJobQueueService(store, 30*time.Second))
	tree.AddProcessingService(services.NewLifecycleService("scheduler", sched))
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))
	err = tree.Serve(ctx)

Service adapters live in the services subpackage.
*/
package supervisor
