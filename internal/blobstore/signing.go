package blobstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"caseflow/internal/services"
)

// ErrInvalidSignature marks expired or tampered signed URLs. It is always
// wrapped with services.ErrValidation.
var ErrInvalidSignature = errors.New("invalid blob signature")

func (s *Store) sign(id string, expires int64) string {
	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write([]byte(id + "|" + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedURL returns a time-limited retrieval URL for an existing object.
func (s *Store) SignedURL(ctx context.Context, id string, ttl time.Duration) (string, error) {
	if len(s.signingKey) == 0 {
		return "", services.Wrap(services.ErrConfiguration, component, "sign", "storage.blob_signing_key is not set", nil)
	}
	if ttl <= 0 {
		return "", services.Wrap(services.ErrValidation, component, "sign", "ttl must be positive", nil)
	}
	obj, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	expires := s.now().Add(ttl).Unix()
	query := url.Values{}
	query.Set("expires", strconv.FormatInt(expires, 10))
	query.Set("sig", s.sign(obj.ID, expires))
	return s.baseURL + "/api/blobs/" + url.PathEscape(obj.ID) + "?" + query.Encode(), nil
}

// VerifySignature checks the expires and sig query values of a signed URL.
func (s *Store) VerifySignature(id, expiresRaw, sig string) error {
	if len(s.signingKey) == 0 {
		return services.Wrap(services.ErrConfiguration, component, "verify", "storage.blob_signing_key is not set", nil)
	}
	expires, err := strconv.ParseInt(strings.TrimSpace(expiresRaw), 10, 64)
	if err != nil {
		return services.Wrap(services.ErrValidation, component, "verify", "malformed expiry: "+err.Error(), ErrInvalidSignature)
	}
	if s.now().Unix() > expires {
		return services.Wrap(services.ErrValidation, component, "verify", "signed url expired", ErrInvalidSignature)
	}
	want := s.sign(strings.TrimSpace(id), expires)
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(strings.TrimSpace(sig)))) {
		return services.Wrap(services.ErrValidation, component, "verify", "signature mismatch", ErrInvalidSignature)
	}
	return nil
}
