package config

const (
	defaultDataDir               = "~/.local/share/manifold"
	defaultLogDir                = "~/.local/share/manifold/logs"
	defaultIngestBucket          = "~/.local/share/manifold/buckets/ingest"
	defaultAssetRepoBucket       = "~/.local/share/manifold/buckets/asset-repo"
	defaultWatermarkBucket       = "~/.local/share/manifold/buckets/watermark-cache"
	defaultLicenseeBucket        = "~/.local/share/manifold/buckets/licensee-cache"
	defaultPollWait              = 20
	defaultVisibilityTimeout     = 300
	defaultErrorRetryInterval    = 5
	defaultSchedulerTickInterval = 30
	defaultValidationCutoffMin   = 1
	defaultManifestFrequency     = 1800
	defaultStudioID              = "STUDIO-DEFAULT"
	defaultWatermarkTimeout      = 30
	defaultMailTimeout           = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:         defaultDataDir,
			LogDir:          defaultLogDir,
			IngestBucket:    defaultIngestBucket,
			AssetRepoBucket: defaultAssetRepoBucket,
			WatermarkBucket: defaultWatermarkBucket,
			LicenseeBucket:  defaultLicenseeBucket,
		},
		Queues: Queues{
			Validation: "asset-validation",
			Manifest:   "manifest-generation",
			Delivery:   "delivery-tracking",
			Exception:  "exception-notification",
			DeadLetter: "dead-letter",
		},
		Workers: Workers{
			PollWait:              defaultPollWait,
			VisibilityTimeout:     defaultVisibilityTimeout,
			ErrorRetryInterval:    defaultErrorRetryInterval,
			SchedulerTickInterval: defaultSchedulerTickInterval,
			ValidationCutoffMin:   defaultValidationCutoffMin,
		},
		Delivery: Delivery{
			DefaultManifestFrequency: defaultManifestFrequency,
			DefaultStudioID:          defaultStudioID,
			ChecksumEnforced:         true,
		},
		Watermark: Watermark{
			RequestTimeout: defaultWatermarkTimeout,
		},
		Mail: Mail{
			RequestTimeout: defaultMailTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
