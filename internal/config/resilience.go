package config

import (
	"time"

	"aiotts_gateway/internal/retry"
)

// ResilienceConfig groups the retry budgets for each kind of remote call.
// Writes use only the Timeout of their entry; they are never retried.
type ResilienceConfig struct {
	SheetRead       retry.Config
	SheetWrite      retry.Config
	WorkbookResolve retry.Config
	DirectoryQuery  retry.Config
	UpstreamRequest retry.Config
}

var DefaultResilienceConfig = ResilienceConfig{
	SheetRead: retry.Config{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    30 * time.Second,
	},
	SheetWrite: retry.Config{
		Timeout: 60 * time.Second,
	},
	WorkbookResolve: retry.Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   10 * time.Second,
		Timeout:    15 * time.Second,
	},
	DirectoryQuery: retry.Config{
		MaxRetries: 2,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Timeout:    5 * time.Second,
	},
	UpstreamRequest: retry.Config{
		Timeout: 30 * time.Second,
	},
}

// WithSheetsTimeout returns a copy of c with every sheet-related attempt
// timeout set to d. A non-positive d leaves c unchanged.
func (c ResilienceConfig) WithSheetsTimeout(d time.Duration) ResilienceConfig {
	if d <= 0 {
		return c
	}
	c.SheetRead.Timeout = d
	c.SheetWrite.Timeout = d
	c.WorkbookResolve.Timeout = d
	return c
}
