package searchexec

// AntiDetectionScript is injected as an on-new-document init script before
// any navigation. It neutralizes the automation signals headless
// Chromium exposes by default.
const AntiDetectionScript = `
(() => {
  Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
  delete Navigator.prototype.webdriver;

  window.chrome = window.chrome || { runtime: {} };

  Object.defineProperty(navigator, 'plugins', {
    get: () => [1, 2, 3, 4, 5].map(() => ({ name: 'Chrome PDF Plugin' })),
  });
  Object.defineProperty(navigator, 'languages', {
    get: () => ['en-US', 'en'],
  });

  const automationGlobals = [
    '__playwright', '__pw_manual', 'callPhantom', '_phantom', 'phantom',
    '__nightmare', 'domAutomation', 'domAutomationController',
  ];
  for (const key of automationGlobals) {
    try { delete window[key]; } catch (e) {}
  }
})();
`

// LaunchArgs is the fixed launch-hardening Chromium argument list: disables the automation-controlled blink feature, suppresses
// first-run/default-browser prompts and logging, and discards cache
// aggressively.
var LaunchArgs = []string{
	"--disable-blink-features=AutomationControlled",
	"--no-first-run",
	"--no-default-browser-check",
	"--disable-extensions",
	"--disable-logging",
	"--log-level=3",
	"--disk-cache-size=1",
	"--media-cache-size=1",
	"--aggressive-cache-discard",
}
