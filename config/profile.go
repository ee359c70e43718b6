package config

import "time"

// Profile is the fetch context resolved once at the entry point and passed
// to every component that talks to the places API.
type Profile struct {
	Mode       Mode
	Credential string
	Timeout    time.Duration
	// RateLimited is set when the runtime credential is in use, which has a
	// normal quota; the batcher then paces and chunks its requests.
	RateLimited bool
	// SkipLive disables live fetches entirely (CI builds).
	SkipLive bool
}

// Elevated reports whether the unlimited build credential is in use.
func (p Profile) Elevated() bool {
	return p.Credential != "" && !p.RateLimited
}

// Profile derives the fetch context from the configuration.
func (c *Config) Profile() Profile {
	p := Profile{
		Mode:        c.Mode,
		Credential:  c.RuntimeAPIKey,
		Timeout:     c.RuntimeTimeout,
		RateLimited: true,
		SkipLive:    c.CI,
	}
	if c.Mode == ModeBuild {
		p.Timeout = c.BuildTimeout
		if c.BuildAPIKey != "" {
			p.Credential = c.BuildAPIKey
			p.RateLimited = false
		}
	}
	return p
}
