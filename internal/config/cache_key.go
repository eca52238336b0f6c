package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:student:%d", studentID)
}

// StaffSessionKey returns the cache key for a staff login session
func (r *CacheKeyStruct) StaffSessionKey(staffID int) string {
	return fmt.Sprintf("login:staff:%d", staffID)
}

// PaperPayloadKey returns the cache key for a paper's student payload
func (r *CacheKeyStruct) PaperPayloadKey(paperID string) string {
	return fmt.Sprintf("paper:%s:payload", paperID)
}

// PaperDurationKey returns the cache key for a paper's duration in minutes
func (r *CacheKeyStruct) PaperDurationKey(paperID string) string {
	return fmt.Sprintf("paper:%s:duration", paperID)
}

// StudentActivePaperKey returns the cache key for a student's active paper
func (r *CacheKeyStruct) StudentActivePaperKey(studentID int) string {
	return fmt.Sprintf("student:%d:active_paper", studentID)
}

// PaperMonitorChannel returns the Redis PubSub channel for a paper monitor
func (r *CacheKeyStruct) PaperMonitorChannel(paperID string) string {
	return fmt.Sprintf("paper:%s:monitor", paperID)
}

var CacheKey = NewCacheKeyStruct()
