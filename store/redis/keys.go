package redis

// Redis key naming conventions for bystander data.
// All keys are prefixed with "bystander:" to avoid collisions.

const keyPrefix = "bystander:"

// ── Request keys ──

// requestKey returns the key for a request record: bystander:request:{id}
func requestKey(id string) string { return keyPrefix + "request:" + id }

// ── Job keys ──

// jobKey returns the key for a job entity: bystander:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// queueKey returns the Sorted Set key for a queue: bystander:queue:{name}
func queueKey(name string) string { return keyPrefix + "queue:" + name }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// ── Lock keys ──

// lockKey returns the key guarding one request: bystander:lock:{id}
func lockKey(id string) string { return keyPrefix + "lock:" + id }
