// Package scrape defines the record shapes and error taxonomy shared by the
// browser session, the platform scrapers and the coordinator.
package scrape
