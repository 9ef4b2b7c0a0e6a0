package app

import (
	"context"

	"talkwire/internal/auth/creds"
	"talkwire/internal/auth/session"
	"talkwire/internal/directory"
	"talkwire/internal/talk/api"
)

// apiLister adapts the REST client to the resolver's Lister, with
// transparent session refresh on authorization failures.
type apiLister struct {
	api      *api.Client
	sessions *session.Manager
}

func (l *apiLister) ListChats(ctx context.Context) ([]directory.Listing, error) {
	return session.WithAutoRefresh(ctx, l.sessions, func(ctx context.Context, s creds.Session) ([]directory.Listing, error) {
		rows, err := l.api.ListChats(ctx, s.AccessToken)
		if err != nil {
			return nil, err
		}
		return toListings(rows), nil
	})
}

func (l *apiLister) ListGroups(ctx context.Context) ([]directory.Listing, error) {
	return session.WithAutoRefresh(ctx, l.sessions, func(ctx context.Context, s creds.Session) ([]directory.Listing, error) {
		rows, err := l.api.ListGroups(ctx, s.AccessToken)
		if err != nil {
			return nil, err
		}
		return toListings(rows), nil
	})
}

func toListings(rows []api.DirectoryEntry) []directory.Listing {
	out := make([]directory.Listing, 0, len(rows))
	for _, r := range rows {
		out = append(out, directory.Listing{ID: r.ID, Title: r.Title})
	}
	return out
}
