package rediskeys

import (
	"strings"
	"time"
)

const (
	CacheAsidePrefix = "cache_aside_"

	JobKeyPrefix     = "job:"
	JobDataKeyPrefix = "job:data:"
	AttemptKeyPrefix = "attempts:"

	RetryJobsKey = "retry:jobs"
	RetryLockKey = "retry:lock"
)

const (
	DefaultCacheTTL = 3300 * time.Second
	JobStatusTTL    = 14 * 24 * time.Hour
	JobDataTTL      = 14 * 24 * time.Hour
	AttemptTTL      = 14 * 24 * time.Hour
	DLQTTL          = 14 * 24 * time.Hour
	RetryLockTTL    = 5 * time.Second
)

// CacheAsideKey expects an already normalized id and upper-cases it.
func CacheAsideKey(id string) string {
	return CacheAsidePrefix + strings.ToUpper(id)
}

func JobKey(id string) string {
	return JobKeyPrefix + id
}

func JobDataKey(id string) string {
	return JobDataKeyPrefix + id
}

func AttemptKey(id string) string {
	return AttemptKeyPrefix + id
}
