// Package device provides the Device Registry and History Log for
// SciReCount Core.
//
// A Device is the durable record of one people-counting sensor: its last
// reported line-crossing counters and the occupancy derived from them. A
// Reading is one accepted sensor report, appended to an immutable log.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                         device                               │
//	│                                                              │
//	│  ┌────────────────┐   ┌──────────────────┐                   │
//	│  │   Registry     │──▶│ SQLiteRepository │──▶ devices table  │
//	│  │ (RWMutex cache)│   └──────────────────┘                   │
//	│  └────────────────┘                                          │
//	│                       ┌────────────────────────┐             │
//	│                       │ SQLiteHistoryRepository│──▶ readings │
//	│                       └────────────────────────┘             │
//	└──────────────────────────────────────────────────────────────┘
//
// The ingest engine is the only writer. The broadcaster and the HTTP API
// read through the Registry, which serves from its cache once
// RefreshCache has run.
//
// # Usage
//
//	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	devices, _ := registry.ListDevices(ctx)
package device
