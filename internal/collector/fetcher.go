package collector

import (
	"context"

	"BollWatch/internal/model"
)

// Source fetches daily closes for one symbol from an upstream provider.
// Implementations classify failures with *FetchError.
type Source interface {
	FetchDailyCloses(ctx context.Context, symbol string, count int) ([]model.PricePoint, error)
	Name() string
}

// CredentialProvider returns the credential to use for the next request.
type CredentialProvider interface {
	Current() model.Credential
}
