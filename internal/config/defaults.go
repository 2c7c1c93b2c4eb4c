package config

// Default returns the built-in configuration values applied before any
// file on disk is consulted.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: "~/.local/share/spool/staging",
			LibraryDir: "~/audiobooks",
			LogDir:     "~/.local/share/spool/logs",
			AuthDir:    "~/.config/spool/auth",
			APIBind:    "127.0.0.1:7575",
		},
		Workers: Workers{
			Count:             3,
			ShortCooldown:     60,
			LongCooldown:      600,
			QueuePollInterval: 15,
		},
		Fetcher: Fetcher{
			Binary:         "audible",
			TimeoutSeconds: 3600,
			CoverSize:      500,
		},
		Transcoder: Transcoder{
			Binary:         "ffmpeg",
			TimeoutSeconds: 3600,
			AudioBitrate:   "64k",
		},
		Auth: Auth{
			Country:              "us",
			EncryptAuthFile:      false,
			Phase1TimeoutSeconds: 120,
			Phase2TimeoutSeconds: 300,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			JobCompleted:   true,
			JobFailed:      true,
			QueueCompleted: true,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
