package services

import "context"

// INotifier schedules out-of-band notifications. Implementations must not block
// on delivery; failures are reported but never undo the triggering write.
type INotifier interface {
	InquirySubmitted(ctx context.Context, inquiryID string) error
	VerificationDecided(ctx context.Context, verificationID string) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) InquirySubmitted(context.Context, string) error    { return nil }
func (NopNotifier) VerificationDecided(context.Context, string) error { return nil }
