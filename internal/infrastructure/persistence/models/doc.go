// Package models contains GORM persistence models for records whose domain
// shape does not map onto columns directly.
//
// Catalog entities carry their own GORM tags and are stored as-is. Sync runs
// keep their statistics and error list as JSON text, so they go through
// SyncRunModel and its ToDomain/FromDomain mappers.
package models
