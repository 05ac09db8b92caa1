// Package device is the registry of lights managed by the TCP Connected
// bridge.
//
// The Registry keeps an in-memory cache over a SQLite Repository. The bridge
// seeds a record per discovered bulb with CreateDeviceIfNotExists, then
// pushes state and health through SetDeviceState and SetDeviceHealth. Reads
// for the REST API come from the cache.
//
// # State history
//
// When a StateHistoryRepository is attached with SetStateHistory, every
// state change is stored as a full snapshot in the state_history table.
// SQLiteStateHistoryRepository.PruneHistory removes old rows.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetStateHistory(device.NewSQLiteStateHistoryRepository(db.DB))
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
// All Registry methods are safe for concurrent use.
package device
