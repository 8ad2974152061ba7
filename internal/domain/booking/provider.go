package booking

import "context"

// ClassLister lists the class dates of one day ("YYYY-MM-DD").
type ClassLister interface {
	ListClasses(ctx context.Context, token string, tenantID, locationID int64, date string) ([]ClassRecord, error)
}

type Booker interface {
	Book(ctx context.Context, token string, classID, userID int64) (BookingResult, error)
}

type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// Provider is the full surface of the booking provider used by the scheduler and CLI.
type Provider interface {
	ClassLister
	Booker
	Refresher
	Login(ctx context.Context, email, password string) (Tokens, error)
	WhoAmI(ctx context.Context, token string) (Identity, error)
	Cancel(ctx context.Context, token string, bookingID int64) error
}
