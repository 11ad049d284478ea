package gateway

import (
	"context"
	"encoding/base64"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	fbhash "firebase.google.com/go/v4/auth/hash"
	"google.golang.org/api/iterator"

	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
	"github.com/brahimakil/appointment-backend-database-synch/internal/gwerrors"
)

// ListUsers paginates the authentication directory on side, 1000
// users per page (domain.ListUsersPageSize).
func (g *Gateway) ListUsers(ctx context.Context, side domain.Side, pageToken string) ([]domain.User, string, error) {
	type page struct {
		users []domain.User
		next  string
	}

	p, err := withRetry(ctx, g.maxRetry, func() (page, error) {
		iter := g.authClient(side).Users(ctx, pageToken)
		pager := iterator.NewPager(iter, domain.ListUsersPageSize, pageToken)

		var records []*fbauth.ExportedUserRecord
		next, err := pager.NextPage(&records)
		if err != nil {
			return page{}, classify(err)
		}

		users := make([]domain.User, 0, len(records))
		for _, r := range records {
			users = append(users, toDomainUser(r))
		}
		return page{users: users, next: next}, nil
	})
	if err != nil {
		return nil, "", err
	}
	return p.users, p.next, nil
}

// ImportUsers bulk-upserts users into side's directory, preserving the
// opaque password-hash parameters from hash.
func (g *Gateway) ImportUsers(ctx context.Context, side domain.Side, users []domain.User, hash domain.HashParams) (domain.ImportOutcome, error) {
	if len(users) == 0 {
		return domain.ImportOutcome{}, nil
	}

	toImport := make([]*fbauth.UserToImport, 0, len(users))
	for _, u := range users {
		toImport = append(toImport, fromDomainUser(u))
	}

	return withRetry(ctx, g.maxRetry, func() (domain.ImportOutcome, error) {
		result, err := g.authClient(side).ImportUsers(ctx, toImport, fbauth.WithHash(hashAlgorithm(hash)))
		if err != nil {
			return domain.ImportOutcome{}, classify(err)
		}

		out := domain.ImportOutcome{
			SuccessCount: result.SuccessCount,
			FailureCount: result.FailureCount,
		}
		for _, e := range result.Errors {
			out.Errors = append(out.Errors, domain.ImportError{Index: e.Index, Reason: e.Reason})
		}
		return out, nil
	})
}

// SetCustomClaims propagates claims for uid on side.
func (g *Gateway) SetCustomClaims(ctx context.Context, side domain.Side, uid string, claims map[string]interface{}) error {
	_, err := withRetry(ctx, g.maxRetry, func() (struct{}, error) {
		return struct{}{}, classify(g.authClient(side).SetCustomUserClaims(ctx, uid, claims))
	})
	return err
}

// GetUser fetches a single user record by UID.
func (g *Gateway) GetUser(ctx context.Context, side domain.Side, uid string) (domain.User, error) {
	return withRetry(ctx, g.maxRetry, func() (domain.User, error) {
		rec, err := g.authClient(side).GetUser(ctx, uid)
		if err != nil {
			return domain.User{}, classify(err)
		}
		return toDomainUser(&fbauth.ExportedUserRecord{UserRecord: rec}), nil
	})
}

// probeAuth runs a trivial read against side's auth directory: list
// at most one user.
func (g *Gateway) probeAuth(ctx context.Context, side domain.Side) error {
	iter := g.authClient(side).Users(ctx, "")
	_, err := iter.Next()
	if err == iterator.Done {
		return nil
	}
	return classify(err)
}

// Probe implements domain.Gateway's single entry point for both probe
// kinds, dispatching to the db/auth specific checks.
func (g *Gateway) Probe(ctx context.Context, side domain.Side, kind string) error {
	switch kind {
	case "db":
		return g.probeDB(ctx, side)
	case "auth":
		return g.probeAuth(ctx, side)
	default:
		return gwerrors.Wrap(gwerrors.Invalid, "unknown probe kind %q", kind)
	}
}

func toDomainUser(r *fbauth.ExportedUserRecord) domain.User {
	u := domain.User{
		UID:           r.UID,
		Email:         r.Email,
		EmailVerified: r.EmailVerified,
		DisplayName:   r.DisplayName,
		PhotoURL:      r.PhotoURL,
		PhoneNumber:   r.PhoneNumber,
		Disabled:      r.Disabled,
		CustomClaims:  r.CustomClaims,
	}
	if r.UserMetadata != nil {
		u.CreationTime = millisToTime(r.UserMetadata.CreationTimestamp)
		u.LastSignInTime = millisToTime(r.UserMetadata.LastLogInTimestamp)
	}
	for _, p := range r.ProviderUserInfo {
		u.ProviderData = append(u.ProviderData, domain.ProviderInfo{
			UID:         p.UID,
			Email:       p.Email,
			DisplayName: p.DisplayName,
			PhotoURL:    p.PhotoURL,
			ProviderID:  p.ProviderID,
		})
	}
	if r.PasswordHash != "" {
		if b, err := base64.StdEncoding.DecodeString(r.PasswordHash); err == nil {
			u.PasswordHash = b
		}
	}
	if r.PasswordSalt != "" {
		if b, err := base64.StdEncoding.DecodeString(r.PasswordSalt); err == nil {
			u.PasswordSalt = b
		}
	}
	return u
}

func fromDomainUser(u domain.User) *fbauth.UserToImport {
	imp := (&fbauth.UserToImport{}).
		UID(u.UID).
		Email(u.Email).
		EmailVerified(u.EmailVerified).
		DisplayName(u.DisplayName).
		PhotoURL(u.PhotoURL).
		PhoneNumber(u.PhoneNumber).
		Disabled(u.Disabled)

	if len(u.PasswordHash) > 0 {
		imp = imp.PasswordHash(u.PasswordHash)
	}
	if len(u.PasswordSalt) > 0 {
		imp = imp.PasswordSalt(u.PasswordSalt)
	}
	if len(u.CustomClaims) > 0 {
		imp = imp.CustomClaims(u.CustomClaims)
	}
	if !u.CreationTime.IsZero() || !u.LastSignInTime.IsZero() {
		imp = imp.Metadata(&fbauth.UserMetadata{
			CreationTimestamp:  timeToMillis(u.CreationTime),
			LastLogInTimestamp: timeToMillis(u.LastSignInTime),
		})
	}
	if len(u.ProviderData) > 0 {
		providers := make([]*fbauth.UserProvider, 0, len(u.ProviderData))
		for _, p := range u.ProviderData {
			providers = append(providers, &fbauth.UserProvider{
				UID:         p.UID,
				Email:       p.Email,
				DisplayName: p.DisplayName,
				PhotoURL:    p.PhotoURL,
				ProviderID:  p.ProviderID,
			})
		}
		imp = imp.ProviderData(providers)
	}
	return imp
}

// hashAlgorithm picks the concrete fbauth.UserImportHash implementation
// for hash.Algorithm. Firebase Auth's own password hashing ("SCRYPT")
// is the default and covers the common case (the
// "algorithm name, rounds, memory cost, key, salt separator" list is
// exactly hash.Scrypt's field set); HMAC-based algorithms are
// supported for directories that were provisioned that way.
func hashAlgorithm(hash domain.HashParams) fbauth.UserImportHash {
	switch hash.Algorithm {
	case "HMAC_SHA256":
		return fbhash.HMACSHA256{Key: hash.Key}
	case "HMAC_SHA512":
		return fbhash.HMACSHA512{Key: hash.Key}
	default:
		return fbhash.Scrypt{
			Key:           hash.Key,
			SaltSeparator: hash.SaltSeparator,
			Rounds:        hash.Rounds,
			MemoryCost:    hash.MemoryCost,
		}
	}
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
