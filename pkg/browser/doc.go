// Package browser implements the session capability on top of Playwright.
//
// A Manager owns the Playwright driver. Every call to Open launches an
// isolated Chromium page. When a profile directory is configured, the first
// session runs on that persistent profile so an existing login is reused;
// sessions opened while it is alive get a copy of its storage state.
package browser
