package notifications

// Notifier defines the interface for push notification services
type Notifier interface {
	// PushMessage sends a titled message to the operator
	PushMessage(title, message string) error
}
