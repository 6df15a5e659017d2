package billing

import "errors"

var (
	// ErrInvalidSignature indicates the webhook payload failed authenticity
	// verification. Fatal to the request; logged as security-relevant.
	ErrInvalidSignature = errors.New("webhook signature verification failed")

	// ErrMalformedPayload indicates the payload could not be parsed into a
	// known event shape. The provider won't send better data on retry.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrMissingWebhookSecret indicates provider construction without a secret.
	ErrMissingWebhookSecret = errors.New("webhook secret is required")

	// ErrMissingAPIKey indicates provider construction without an API key.
	ErrMissingAPIKey = errors.New("billing provider API key is required")

	// ErrInvalidEnvironment indicates an unsupported provider environment.
	ErrInvalidEnvironment = errors.New("invalid billing provider environment")

	// ErrUnknownProvider indicates an unsupported provider name in config.
	ErrUnknownProvider = errors.New("unknown billing provider")
)
