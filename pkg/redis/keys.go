package redis

import "strings"

const namespace = "ff"

const (
	prefixIdempotency = "idempotency"
	prefixRateLimit   = "rate_limit"
	prefixActionCode  = "action_code"
	prefixLock        = "lock"
)

// Key joins the non-blank parts under the service namespace, for example
// ff:rate_limit:delivery_verify:ip:10.0.0.1.
func Key(parts ...string) string {
	b := strings.Builder{}
	b.WriteString(namespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// LockKey names a distributed lock, scoped by deployment environment.
func LockKey(name, env string) string {
	if env == "" {
		env = "local"
	}
	return Key(prefixLock, name, env)
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return Key(prefixIdempotency, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return Key(prefixRateLimit, scope)
}

func (c *Client) ActionCodeKey(action, subjectID string) string {
	return Key(prefixActionCode, action, subjectID)
}
