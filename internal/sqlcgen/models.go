package sqlcgen

import "time"

type Venue struct {
	VenueID   string
	Name      string
	Footprint []byte
	UpdatedAt time.Time
}

type BuildingDocument struct {
	VenueID   string
	Document  []byte
	UpdatedAt time.Time
}

type NetworkDocument struct {
	VenueID   string
	Features  []byte
	UpdatedAt time.Time
}

type Account struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type IngestJob struct {
	ID          string
	VenueID     string
	Kind        string
	Status      string
	Payload     []byte
	Attempts    int32
	CreatedAt   time.Time
	CompletedAt *time.Time
	LastError   *string
}

type IngestJobLog struct {
	JobID   string
	Level   string
	Message string
}
