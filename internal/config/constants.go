package config

const (
	// DefaultDatabasePath is the default path for the application database
	DefaultDatabasePath = "./storynest.db"

	// Uploaded covers wider than this are scaled down and re-encoded as JPEG.
	DefaultCoverMaxWidth = 400
	DefaultCoverQuality  = 70

	DefaultAvatarMaxWidth = 256
)
