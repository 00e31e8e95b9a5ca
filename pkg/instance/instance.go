package instance

import "os"

// GetID names this process in outbox claims and logs: PPETRACK_INSTANCE_ID,
// then the hostname, then a fixed fallback.
func GetID() string {
	if id := os.Getenv("PPETRACK_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "ppetrack-0"
}
