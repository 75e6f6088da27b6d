package database

import "time"

// Delivery channels.
const (
	ChannelEmail = "email"
)

// Delivery statuses.
const (
	DeliverySent    = "sent"
	DeliverySkipped = "skipped"
	DeliveryError   = "error"
)

// SeenInput describes a listed bulletin about to be marked as seen.
type SeenInput struct {
	Title       string
	URL         string
	PublishedAt *time.Time
}

// SeenRecord is a bulletin that has already been detected. It is written
// once and never updated.
type SeenRecord struct {
	Fingerprint string
	Title       string
	URL         string
	PublishedAt *time.Time
	FirstSeenAt time.Time
}

// DeliveryRecord is the audit row of one delivery attempt for one
// bulletin on one channel.
type DeliveryRecord struct {
	DeliveryKey     string
	ItemFingerprint string
	Channel         string
	Status          string
	RecordedAt      time.Time
}

// RunReport holds metadata about a pipeline run, including the rendered
// notification when one was produced.
type RunReport struct {
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	Candidates     int
	NewItems       int
	DeliveryStatus *string
	Subject        *string
	BodyHTML       *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	SeenBulletins     int
	DeliveriesSent    int
	DeliveriesSkipped int
	DeliveriesFailed  int
	Runs              int
	LastRunAt         *time.Time
}
