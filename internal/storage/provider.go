package storage

import "scenecast/internal/ports"

// Provider is the storage contract shared by the api, the worker and the
// cli. It aliases ports.StorageProvider.
type Provider = ports.StorageProvider
