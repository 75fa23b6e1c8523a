// Package catalog defines the core types shared across the crawling and
// extraction subsystems: jobs, discovered pages, sites, products, price
// observations, and the collaborator interfaces (Renderer, stores) that the
// engine is wired against.
package catalog
