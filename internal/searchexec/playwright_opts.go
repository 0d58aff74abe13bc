package searchexec

import (
	"time"

	"github.com/playwright-community/playwright-go"
)

func playwrightGotoTimeout(d time.Duration) playwright.PageGotoOptions {
	return playwright.PageGotoOptions{Timeout: playwright.Float(float64(d / time.Millisecond))}
}

func playwrightWaitForSelectorTimeout(d time.Duration) playwright.PageWaitForSelectorOptions {
	return playwright.PageWaitForSelectorOptions{Timeout: playwright.Float(float64(d / time.Millisecond))}
}
