// Package consent models the visitor's tracking consent on the client.
//
// Manager holds the decision, persists it in Storage and publishes every
// transition on a Bus. ModeUpdater subscribes to the bus and forwards the
// vendor consent-mode signal (granted/denied per storage category) to a
// VendorSignal such as DataLayer.
//
//	storage := consent.NewMemoryStorage()
//	mgr := consent.NewManager(storage, consent.NewBus(), nil)
//	consent.NewModeUpdater(consent.NewDataLayer(), mgr)
//	mgr.Init(doNotTrack)
package consent
