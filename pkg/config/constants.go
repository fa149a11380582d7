package config

import "time"

// Server defaults
const (
	DefaultPort         = 8080
	DefaultMaxStorageGB = 1
	DefaultMaxMemoryMB  = 48
)

// Server timeouts
const (
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 60 * time.Second
	ShutdownTimeout    = 30 * time.Second
)

// Retention defaults
const (
	DefaultRetentionInterval = 1 * time.Hour
	MinRetentionHours        = 1
	MaxRetentionHours        = 720
	PurgeTimeout             = 5 * time.Minute
	BadgerGCInterval         = 10 * time.Minute
)

// Gateway retry defaults
const (
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 200 * time.Millisecond
)

// Query timeouts and defaults
const (
	QueryDefaultRange = "1h"
	QueryTimeout      = 30 * time.Second
)

// Ingest timeouts and limits
const (
	IngestTimeout          = 5 * time.Second
	IngestMaxReadings      = 1000
	IngestWriteBatchSize   = 500
	IngestMaxSensorIDBytes = 128
)

// Export defaults and limits
const (
	DefaultExportWindow     = 24 * time.Hour
	MaxExportWindow         = 30 * 24 * time.Hour
	DefaultExportMaxBytes   = 100 * 1024 * 1024
	DefaultCompressionLevel = 6
	ExportTimeout           = 2 * time.Minute
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)
