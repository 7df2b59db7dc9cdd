package libsync

// This file is only for test purpose and is only loaded by test framework.

// SetRetryConfig overrides the retry behavior of the given client.
func SetRetryConfig(c Client, cfg RetryConfig) {
	c.(*client).retry = cfg
}
